package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"natural-alert/internal/logger"
	"natural-alert/internal/model"
	"natural-alert/internal/repository"
)

// TurnArchiveWorker drains the archive queue and writes finished
// conversation turns to MySQL. It runs off the request path; a slow or
// down database only delays archiving, never a chat response.
type TurnArchiveWorker struct {
	conn      *amqp.Connection
	repo      *repository.TurnRepository
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnArchiveWorker(conn *amqp.Connection, repo *repository.TurnRepository, queueName string, log *logger.Logger) *TurnArchiveWorker {
	return &TurnArchiveWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		log:       log,
	}
}

func (w *TurnArchiveWorker) Start(ctx context.Context) error {
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

				var turn model.ArchivedTurn
				if err := json.Unmarshal(d.Body, &turn); err != nil {
					w.log.Warnw("worker decode turn failed", "err", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.repo.Create(&turn); err != nil {
					w.log.Warnw("worker persist turn failed", "err", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *TurnArchiveWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
