package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"askthedocs/internal/model"
	"askthedocs/internal/repository"
)

// HistoryPersistWorker drains the history queue into the sqlite archive so
// answering never waits on the database.
type HistoryPersistWorker struct {
	conn      *amqp.Connection
	repo      *repository.HistoryRepository
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryPersistWorker(conn *amqp.Connection, repo *repository.HistoryRepository, queueName string, logger *zap.Logger) *HistoryPersistWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryPersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *HistoryPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var rec model.HistoryRecord
				if err := json.Unmarshal(d.Body, &rec); err != nil {
					w.logger.Error("decode history record failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := w.repo.Create(&rec); err != nil {
					w.logger.Error("persist history record failed",
						zap.String("session_id", rec.SessionID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *HistoryPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
