package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/repositories"
	"github.com/cbodonnell/battlecards/pkg/repositories/models"
)

const (
	// ArchiveChannelSize represents the number of archive items that can wait to be written
	ArchiveChannelSize = 1024
	// archiveWriteTimeout bounds a single repository write
	archiveWriteTimeout = 10 * time.Second
)

// ArchiveWorker writes resolved requests and closed games to the repository.
// ArchiveRequest and ArchiveGame never block; items are dropped when the buffer is full.
type ArchiveWorker struct {
	repository  repositories.Repository
	archiveChan chan archiveItem
	now         func() time.Time
}

type NewArchiveWorkerOptions struct {
	Repository repositories.Repository
	// BufferSize defaults to ArchiveChannelSize
	BufferSize int
}

type archiveItem struct {
	request *types.AbilityRequest
	game    *types.Game
}

func NewArchiveWorker(opts NewArchiveWorkerOptions) *ArchiveWorker {
	size := opts.BufferSize
	if size <= 0 {
		size = ArchiveChannelSize
	}
	return &ArchiveWorker{
		repository:  opts.Repository,
		archiveChan: make(chan archiveItem, size),
		now:         time.Now,
	}
}

func (w *ArchiveWorker) ArchiveRequest(request *types.AbilityRequest) {
	w.enqueue(archiveItem{request: request.Copy()})
}

func (w *ArchiveWorker) ArchiveGame(game *types.Game) {
	w.enqueue(archiveItem{game: game.Copy()})
}

func (w *ArchiveWorker) enqueue(item archiveItem) {
	select {
	case w.archiveChan <- item:
	default:
		log.Warn("Archive buffer is full, dropping item")
	}
}

// Start processes archive items until ctx is cancelled, then writes whatever is still buffered.
func (w *ArchiveWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case item := <-w.archiveChan:
			w.write(context.Background(), item)
		}
	}
}

func (w *ArchiveWorker) drain() {
	for {
		select {
		case item := <-w.archiveChan:
			w.write(context.Background(), item)
		default:
			return
		}
	}
}

func (w *ArchiveWorker) write(ctx context.Context, item archiveItem) {
	ctx, cancel := context.WithTimeout(ctx, archiveWriteTimeout)
	defer cancel()

	if item.request != nil {
		if err := w.repository.SaveAbilityRequest(ctx, item.request); err != nil {
			log.Error("Failed to archive request %s: %v", item.request.ID, err)
		}
		return
	}

	if item.game != nil {
		// requests are archived as they resolve, pending ones are captured here
		for _, id := range item.game.RequestOrder {
			request, ok := item.game.Requests[id]
			if !ok || request.Status != types.RequestStatusPending {
				continue
			}
			if err := w.repository.SaveAbilityRequest(ctx, request); err != nil {
				log.Error("Failed to archive request %s: %v", request.ID, err)
			}
		}

		record, err := models.NewGameRecord(item.game, w.now())
		if err != nil {
			log.Error("Failed to build record for game %s: %v", item.game.ID, err)
			return
		}
		if err := w.repository.SaveGameRecord(ctx, record); err != nil {
			log.Error("Failed to archive game %s: %v", item.game.ID, err)
			return
		}
		log.Debug("Archived game %s", item.game.ID)
	}
}
