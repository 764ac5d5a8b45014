package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/anki-importer/internal/ankiconnect"
	"github.com/fyerfyer/anki-importer/internal/cache"
	"github.com/fyerfyer/anki-importer/internal/database"
	"github.com/fyerfyer/anki-importer/internal/flashcard"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/internal/repository"
)

const sampleCards = `Some chatter before the cards.

Front: What is the capital of France?
Back: Paris
Extras: Also its largest city

Front: 2 + 2?
Back: 4

Front: Missing back
`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestRepo 创建使用内存数据库的导入记录仓储
func setupTestRepo(t *testing.T) repository.ImportRepository {
	dsn := fmt.Sprintf("file:svc_memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return repository.NewImportRepositoryWithDB(db)
}

// expectHealthyAnki 设置Anki正常工作时的期望
func expectHealthyAnki(client *ankiconnect.MockClient, deck string) {
	client.EXPECT().Ping(mock.Anything).Return(nil)
	client.EXPECT().DeckNames(mock.Anything).Return([]string{"Default", deck}, nil)
	client.EXPECT().ModelFieldNames(mock.Anything, "Basic").Return([]string{"Front", "Back"}, nil)
}

func TestImportService_Preview(t *testing.T) {
	svc := NewImportService(ankiconnect.NewMockClient(t), WithLogger(testLogger()))

	records := svc.Preview(sampleCards, ParseOptions{})
	require.Len(t, records, 2)
	assert.Equal(t, flashcard.Record{"What is the capital of France?", "Paris", "Also its largest city"}, records[0])
	assert.Equal(t, flashcard.Record{"2 + 2?", "4", ""}, records[1])

	t.Run("custom aliases", func(t *testing.T) {
		text := "Front: Q\nAnswer: A\n"
		records := svc.Preview(text, ParseOptions{FieldMap: map[string]string{"Answer": "Back"}})
		require.Len(t, records, 1)
		assert.Equal(t, "A", records[0].Get(flashcard.DefaultFields(), "Back"))
	})

	t.Run("default aliases", func(t *testing.T) {
		text := "Front: Q\nBack: A\nReferences: book\n"
		records := svc.Preview(text, ParseOptions{})
		require.Len(t, records, 1)
		assert.Equal(t, "book", records[0][2])
	})
}

func TestImportService_Import(t *testing.T) {
	client := ankiconnect.NewMockClient(t)
	expectHealthyAnki(client, "Geo")

	var notes []ankiconnect.Note
	var mu sync.Mutex
	client.EXPECT().AddNote(mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			notes = append(notes, args.Get(1).(ankiconnect.Note))
		}).
		Return(int64(1001), nil).Twice()

	repo := setupTestRepo(t)
	svc := NewImportService(client, WithLogger(testLogger()), WithRepository(repo), WithConcurrency(2))

	summary, err := svc.Import(context.Background(), ImportRequest{Text: sampleCards, Deck: "Geo"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "Geo", summary.Deck)
	assert.Equal(t, "Basic", summary.Model)
	assert.Equal(t, "2 flashcards added to Anki deck 'Geo'.", summary.Message)
	assert.NotEmpty(t, summary.JobID)

	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, "Geo", n.DeckName)
		assert.Equal(t, "Basic", n.ModelName)
		assert.Equal(t, []string{"auto_imported"}, n.Tags)
		assert.False(t, n.Options.AllowDuplicate)
		// Extras 不在笔记类型中，不会发送
		assert.NotContains(t, n.Fields, "Extras")
		assert.Contains(t, n.Fields, "Front")
	}

	detail, err := svc.GetJob(summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, detail.Job.Status)
	assert.Equal(t, 2, detail.Job.Added)
	assert.NotNil(t, detail.Job.FinishedAt)
	require.Len(t, detail.Notes, 2)
	assert.Equal(t, 0, detail.Notes[0].Position)
	assert.Equal(t, int64(1001), detail.Notes[1].NoteID)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(detail.Notes[0].Fields, &fields))
	assert.Equal(t, "What is the capital of France?", fields["Front"])
}

func TestImportService_ImportPartialFailure(t *testing.T) {
	client := ankiconnect.NewMockClient(t)
	expectHealthyAnki(client, "Geo")

	client.EXPECT().AddNote(mock.Anything, mock.MatchedBy(func(n ankiconnect.Note) bool {
		return n.Fields["Front"] == "2 + 2?"
	})).Return(int64(0), ankiconnect.NewAnkiError(ankiconnect.ErrCodeServer, "addNote", "cannot create note because it is a duplicate"))
	client.EXPECT().AddNote(mock.Anything, mock.Anything).Return(int64(7), nil)

	svc := NewImportService(client, WithLogger(testLogger()))
	summary, err := svc.Import(context.Background(), ImportRequest{Text: sampleCards, Deck: "Geo"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 1, summary.Errors[0].Position)
	assert.Equal(t, "2 + 2?", summary.Errors[0].Front)
	assert.Contains(t, summary.Errors[0].Error, "duplicate")
	assert.Equal(t, "1 flashcards added to Anki deck 'Geo'. 1 cards could not be added.", summary.Message)
}

func TestImportService_CreatesMissingDeck(t *testing.T) {
	client := ankiconnect.NewMockClient(t)
	client.EXPECT().Ping(mock.Anything).Return(nil)
	client.EXPECT().DeckNames(mock.Anything).Return([]string{"Default"}, nil).Once()
	client.EXPECT().CreateDeck(mock.Anything, "New Deck").Return(int64(42), nil).Once()
	client.EXPECT().ModelFieldNames(mock.Anything, "Basic").Return(nil, errors.New("model not found"))
	client.EXPECT().AddNote(mock.Anything, mock.Anything).Return(int64(1), nil)

	mem, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	svc := NewImportService(client, WithLogger(testLogger()), WithCache(mem, "test", time.Minute))

	text := "Front: Q\nBack: A\nExtras: E"
	_, err = svc.Import(context.Background(), ImportRequest{Text: text, Deck: "New Deck"})
	require.NoError(t, err)

	// 第二次导入命中缓存，不再查询牌组
	_, err = svc.Import(context.Background(), ImportRequest{Text: text, Deck: "New Deck"})
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "DeckNames", 1)
	client.AssertNumberOfCalls(t, "AddNote", 2)

	// 笔记类型字段未知时发送全部字段
	note := client.Calls[len(client.Calls)-1].Arguments.Get(1).(ankiconnect.Note)
	assert.Equal(t, map[string]string{"Front": "Q", "Back": "A", "Extras": "E"}, note.Fields)
}

func TestImportService_ImportErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no flashcards", func(t *testing.T) {
		client := ankiconnect.NewMockClient(t)
		repo := setupTestRepo(t)
		svc := NewImportService(client, WithLogger(testLogger()), WithRepository(repo))

		_, err := svc.Import(ctx, ImportRequest{Text: "just some prose"})
		assert.ErrorIs(t, err, models.ErrNoFlashcards)

		jobs, total, err := svc.ListJobs(0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, models.ImportStatusFailed, jobs[0].Status)
		assert.Equal(t, "ChatGPT Imported Cards", jobs[0].DeckName)
	})

	t.Run("empty text", func(t *testing.T) {
		svc := NewImportService(ankiconnect.NewMockClient(t), WithLogger(testLogger()))
		_, err := svc.Import(ctx, ImportRequest{Text: "  \n"})
		assert.ErrorIs(t, err, models.ErrNoFlashcards)
	})

	t.Run("anki unavailable", func(t *testing.T) {
		client := ankiconnect.NewMockClient(t)
		client.EXPECT().Ping(mock.Anything).
			Return(ankiconnect.NewAnkiError(ankiconnect.ErrCodeConnection, "version", ankiconnect.ErrMsgConnection))
		svc := NewImportService(client, WithLogger(testLogger()))

		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards})
		assert.ErrorIs(t, err, models.ErrAnkiUnavailable)
		assert.Contains(t, err.Error(), "Connection failed")
	})

	t.Run("deck creation failed", func(t *testing.T) {
		client := ankiconnect.NewMockClient(t)
		client.EXPECT().Ping(mock.Anything).Return(nil)
		client.EXPECT().DeckNames(mock.Anything).Return([]string{}, nil)
		client.EXPECT().CreateDeck(mock.Anything, "Geo").Return(int64(0), errors.New("boom"))
		svc := NewImportService(client, WithLogger(testLogger()))

		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards, Deck: "Geo"})
		assert.ErrorIs(t, err, models.ErrDeckCreation)
	})

	t.Run("anki lost while listing decks", func(t *testing.T) {
		client := ankiconnect.NewMockClient(t)
		client.EXPECT().Ping(mock.Anything).Return(nil)
		client.EXPECT().DeckNames(mock.Anything).
			Return(nil, ankiconnect.NewAnkiError(ankiconnect.ErrCodeConnection, "deckNames", ankiconnect.ErrMsgConnection))
		svc := NewImportService(client, WithLogger(testLogger()))

		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards, Deck: "Geo"})
		assert.ErrorIs(t, err, models.ErrAnkiUnavailable)
		assert.NotErrorIs(t, err, models.ErrDeckCreation)
	})

	t.Run("anki lost while creating deck", func(t *testing.T) {
		client := ankiconnect.NewMockClient(t)
		client.EXPECT().Ping(mock.Anything).Return(nil)
		client.EXPECT().DeckNames(mock.Anything).Return([]string{}, nil)
		client.EXPECT().CreateDeck(mock.Anything, "Geo").
			Return(int64(0), ankiconnect.NewAnkiError(ankiconnect.ErrCodeTimeout, "createDeck", ankiconnect.ErrMsgTimeout))
		svc := NewImportService(client, WithLogger(testLogger()))

		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards, Deck: "Geo"})
		assert.ErrorIs(t, err, models.ErrAnkiUnavailable)
	})

	t.Run("fields without Back", func(t *testing.T) {
		svc := NewImportService(ankiconnect.NewMockClient(t), WithLogger(testLogger()))
		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards, Fields: []string{"Front", "Extras"}})
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})

	t.Run("unknown source", func(t *testing.T) {
		svc := NewImportService(ankiconnect.NewMockClient(t), WithLogger(testLogger()))
		_, err := svc.Import(ctx, ImportRequest{Text: sampleCards, Source: "clipboard"})
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})
}

func TestImportService_Concurrency(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Front: Q%d\nBack: A%d\n\n", i, i)
	}

	var inFlight, peak int32
	client := ankiconnect.NewMockClient(t)
	expectHealthyAnki(client, "Geo")
	client.EXPECT().AddNote(mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}).
		Return(int64(1), nil)

	svc := NewImportService(client, WithLogger(testLogger()), WithConcurrency(3))
	summary, err := svc.Import(context.Background(), ImportRequest{Text: b.String(), Deck: "Geo"})
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Added)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestImportService_WithDefaults(t *testing.T) {
	svc := NewImportService(ankiconnect.NewMockClient(t), WithDefaults(ImportDefaults{
		Deck: "Custom",
		Tags: []string{},
	}))

	d := svc.Defaults()
	assert.Equal(t, "Custom", d.Deck)
	assert.Equal(t, "Basic", d.Model)
	assert.Equal(t, flashcard.DefaultFields(), d.Fields)
	assert.Empty(t, d.Tags)

	req := svc.applyDefaults(ImportRequest{Deck: "  Spaced  "})
	assert.Equal(t, "Spaced", req.Deck)
	assert.Equal(t, models.SourceText, req.Source)
	assert.Equal(t, "Front", req.LeadingField)
}

func TestImportService_HistoryDisabled(t *testing.T) {
	svc := NewImportService(ankiconnect.NewMockClient(t))

	_, _, err := svc.ListJobs(0, 10)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.GetJob("x")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestImportService_CheckConnection(t *testing.T) {
	client := ankiconnect.NewMockClient(t)
	client.EXPECT().Version(mock.Anything).Return(6, nil).Once()
	client.EXPECT().Version(mock.Anything).Return(0, errors.New("refused")).Once()

	svc := NewImportService(client)
	v, err := svc.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	_, err = svc.CheckConnection(context.Background())
	assert.ErrorIs(t, err, models.ErrAnkiUnavailable)
}

func TestImportService_AllowDuplicate(t *testing.T) {
	allow, deny := true, false

	tests := []struct {
		name     string
		fallback bool
		request  *bool
		want     bool
	}{
		{"default off", false, nil, false},
		{"default on", true, nil, true},
		{"request turns on", false, &allow, true},
		{"request turns off", true, &deny, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ankiconnect.NewMockClient(t)
			expectHealthyAnki(client, "Geo")
			client.EXPECT().AddNote(mock.Anything, mock.MatchedBy(func(n ankiconnect.Note) bool {
				return n.Options.AllowDuplicate == tt.want
			})).Return(int64(1), nil)

			svc := NewImportService(client, WithLogger(testLogger()),
				WithDefaults(ImportDefaults{AllowDuplicate: tt.fallback}))
			summary, err := svc.Import(context.Background(), ImportRequest{
				Text:           "Front: Q\nBack: A",
				Deck:           "Geo",
				AllowDuplicate: tt.request,
			})
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Added)
		})
	}
}

func TestImportService_FailedImportResetsDeckCache(t *testing.T) {
	client := ankiconnect.NewMockClient(t)
	client.EXPECT().Ping(mock.Anything).Return(nil)
	client.EXPECT().DeckNames(mock.Anything).Return([]string{"Geo"}, nil)
	client.EXPECT().ModelFieldNames(mock.Anything, "Basic").Return([]string{"Front", "Back"}, nil)
	client.EXPECT().AddNote(mock.Anything, mock.Anything).
		Return(int64(0), ankiconnect.NewAnkiError(ankiconnect.ErrCodeServer, "addNote", "deck was not found")).Once()
	client.EXPECT().AddNote(mock.Anything, mock.Anything).Return(int64(1), nil)

	mem, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	svc := NewImportService(client, WithLogger(testLogger()), WithCache(mem, "test", time.Minute))

	req := ImportRequest{Text: "Front: Q\nBack: A", Deck: "Geo"}
	summary, err := svc.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	_, found, err := mem.Get(cache.DeckKey("test", "Geo"))
	require.NoError(t, err)
	assert.False(t, found)

	// 上次全部失败，重新确认牌组
	_, err = svc.Import(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Import(context.Background(), req)
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "DeckNames", 2)
}
