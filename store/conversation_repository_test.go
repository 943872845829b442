package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// A single connection serializes transactions the way Postgres row locks
	// would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Conversation{}, &ConversationTurn{}))
	return db
}

func testTurn(query string) TurnData {
	score := 90
	return TurnData{
		UserQuery:      query,
		AgentResponse:  "answer to " + query,
		GuardrailScore: &score,
		Provider:       "openai",
		Model:          "gpt-4o-mini",
	}
}

func TestGetOrCreate(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "session-1", first.SessionID)

	second, err := repo.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := repo.GetOrCreate(ctx, "session-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSaveTurn_SequentialNumbering(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		turn, err := repo.SaveTurn(ctx, "session-1", testTurn(fmt.Sprintf("q%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, turn.TurnNumber)
	}

	// Each session numbers independently.
	turn, err := repo.SaveTurn(ctx, "session-2", testTurn("other"))
	require.NoError(t, err)
	assert.Equal(t, 0, turn.TurnNumber)
}

func TestSaveTurn_CreatesConversationImplicitly(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	turn, err := repo.SaveTurn(ctx, "fresh-session", testTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, turn.TurnNumber)

	conv, err := repo.GetBySessionID(ctx, "fresh-session")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, turn.ConversationID, conv.ID)
}

func TestSaveTurn_ConcurrentWritersGetGapFreeNumbers(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	numbers := make(chan int, writers)
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn, err := repo.SaveTurn(ctx, "shared", testTurn(fmt.Sprintf("q%d", i)))
			if err != nil {
				errs <- err
				return
			}
			numbers <- turn.TurnNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent save failed: %v", err)
	}

	seen := map[int]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "turn number %d assigned twice", n)
		seen[n] = true
	}
	// Exactly {0..writers-1}, no gaps.
	for i := 0; i < writers; i++ {
		assert.True(t, seen[i], "turn number %d missing", i)
	}
}

func TestGetHistory_ChronologicalWindow(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := repo.SaveTurn(ctx, "s", testTurn(fmt.Sprintf("q%d", i)))
		require.NoError(t, err)
	}

	turns, err := repo.GetHistory(ctx, "s", 5)
	require.NoError(t, err)
	require.Len(t, turns, 5)

	// Most recent 5 turns, oldest of those first.
	for i, turn := range turns {
		assert.Equal(t, i+2, turn.TurnNumber)
		assert.Equal(t, fmt.Sprintf("q%d", i+2), turn.UserQuery)
	}
}

func TestGetHistory_UnknownSessionIsEmpty(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())

	turns, err := repo.GetHistory(context.Background(), "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDelete(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	_, err := repo.SaveTurn(ctx, "doomed", testTurn("q"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, deleted)

	conv, err := repo.GetBySessionID(ctx, "doomed")
	require.NoError(t, err)
	assert.Nil(t, conv)

	count, err := repo.TurnCount(ctx, "doomed")
	require.NoError(t, err)
	assert.Zero(t, count)

	deleted, err = repo.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTurnCount(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	count, err := repo.TurnCount(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, count)

	for i := 0; i < 3; i++ {
		_, err := repo.SaveTurn(ctx, "s", testTurn("q"))
		require.NoError(t, err)
	}

	count, err = repo.TurnCount(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}
