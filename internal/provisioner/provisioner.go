// Package provisioner implements the Provisioner: a consumer of three
// durable work-item queues that drives the ClusterGateway and secret store,
// updates the deployment row, and publishes status events.
package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/domain"
)

const (
	exchangeName       = "compute"
	createQueue        = "compute.create"
	updateQueue        = "compute.update"
	deleteQueue        = "compute.delete"
	deadLetterExchange = "compute.dead_letter"
	maxRetries         = 3
	publishTimeout     = 5 * time.Second
)

// Provisioner owns the broker channel and the collaborators every handler
// needs.
type Provisioner struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	repo    *db.Repository
	cache   *cache.MetricsCache
	gw      *cluster.Gateway
	secrets SecretStore
	log     *zap.Logger
}

// New dials the broker and declares the exchange/queue/DLX topology.
func New(amqpURL string, repo *db.Repository, mc *cache.MetricsCache, gw *cluster.Gateway, secrets SecretStore, log *zap.Logger) (*Provisioner, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &Provisioner{conn: conn, channel: ch, repo: repo, cache: mc, gw: gw, secrets: secrets, log: log}
	if err := p.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Provisioner) declareTopology() error {
	if err := p.channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}
	if err := p.channel.ExchangeDeclare(deadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", deadLetterExchange, err)
	}

	for _, q := range []string{createQueue, updateQueue, deleteQueue} {
		_, err := p.channel.QueueDeclare(q, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": deadLetterExchange,
		})
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := p.channel.QueueBind(q, q, exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}

	if err := p.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Close releases the broker channel and connection.
func (p *Provisioner) Close() error {
	p.channel.Close()
	return p.conn.Close()
}

// Run consumes all three queues until ctx is cancelled. Each queue runs on
// its own goroutine; Run returns once all three have stopped.
func (p *Provisioner) Run(ctx context.Context) error {
	creates, err := p.channel.Consume(createQueue, "provisioner.create", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", createQueue, err)
	}
	updates, err := p.channel.Consume(updateQueue, "provisioner.update", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", updateQueue, err)
	}
	deletes, err := p.channel.Consume(deleteQueue, "provisioner.delete", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", deleteQueue, err)
	}

	done := make(chan struct{}, 3)
	go func() { p.consumeCreate(ctx, creates); done <- struct{}{} }()
	go func() { p.consumeUpdate(ctx, updates); done <- struct{}{} }()
	go func() { p.consumeDelete(ctx, deletes); done <- struct{}{} }()

	<-ctx.Done()
	<-done
	<-done
	<-done
	return nil
}

// giveUp handles the "retry count exceeded" path shared by all three
// handlers: acknowledge (stop retrying), record the final failure as a
// DeploymentEvent, and surface it to subscribers as a system message.
func (p *Provisioner) giveUp(ctx context.Context, d amqp.Delivery, projectID uuid.UUID, deploymentID uuid.UUID, kind string) {
	p.log.Error("max retries reached, dropping message", zap.String("kind", kind), zap.String("deployment_id", deploymentID.String()))
	message := fmt.Sprintf("%s: retries exhausted, operator intervention required", kind)
	_ = p.repo.InsertEvent(ctx, &domain.DeploymentEvent{
		DeploymentID: deploymentID,
		Type:         domain.EventTypeRetryExhausted,
		Message:      message,
	})
	_, _ = p.repo.UpdateStatus(ctx, deploymentID, domain.StatusFailed)

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	channel := fmt.Sprintf("project:%s:metrics", projectID)
	sysMsg := domain.NewSystemMessage(deploymentID, domain.LevelError, message)
	if err := p.cache.Publish(pctx, channel, sysMsg); err != nil {
		p.log.Warn("publish give-up system message failed", zap.Error(err))
	}

	if err := d.Ack(false); err != nil {
		p.log.Error("failed to ack give-up message", zap.Error(err))
	}
}

func (p *Provisioner) consumeCreate(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handleCreateDelivery(ctx, d)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provisioner) handleCreateDelivery(ctx context.Context, d amqp.Delivery) {
	retries := retryCount(d.Headers)
	var item domain.CreateWorkItem
	if err := json.Unmarshal(d.Body, &item); err != nil {
		p.log.Error("malformed create work item", zap.Error(err))
		_ = d.Reject(false)
		return
	}
	if err := domain.ValidateCreateWorkItem(item); err != nil {
		p.log.Error("invalid create work item", zap.Error(err), zap.String("deployment_id", item.DeploymentID.String()))
		_ = d.Reject(false)
		return
	}
	if retries > maxRetries {
		p.giveUp(ctx, d, item.ProjectID, item.DeploymentID, "create")
		return
	}

	if err := p.handleCreate(ctx, item); err != nil {
		p.log.Error("create handler failed", zap.Error(err), zap.String("deployment_id", item.DeploymentID.String()))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (p *Provisioner) consumeUpdate(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handleUpdateDelivery(ctx, d)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provisioner) handleUpdateDelivery(ctx context.Context, d amqp.Delivery) {
	retries := retryCount(d.Headers)
	var item domain.UpdateWorkItem
	if err := json.Unmarshal(d.Body, &item); err != nil {
		p.log.Error("malformed update work item", zap.Error(err))
		_ = d.Reject(false)
		return
	}
	if err := domain.ValidateUpdateWorkItem(item); err != nil {
		p.log.Error("invalid update work item", zap.Error(err), zap.String("deployment_id", item.DeploymentID.String()))
		_ = d.Reject(false)
		return
	}
	if retries > maxRetries {
		p.giveUp(ctx, d, item.ProjectID, item.DeploymentID, "update")
		return
	}

	if err := p.handleUpdate(ctx, item); err != nil {
		p.log.Error("update handler failed", zap.Error(err), zap.String("deployment_id", item.DeploymentID.String()))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (p *Provisioner) consumeDelete(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handleDeleteDelivery(ctx, d)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provisioner) handleDeleteDelivery(ctx context.Context, d amqp.Delivery) {
	retries := retryCount(d.Headers)
	var item domain.DeleteWorkItem
	if err := json.Unmarshal(d.Body, &item); err != nil {
		p.log.Error("malformed delete work item", zap.Error(err))
		_ = d.Reject(false)
		return
	}
	if retries > maxRetries {
		p.giveUp(ctx, d, item.ProjectID, item.DeploymentID, "delete")
		return
	}

	if err := p.handleDelete(ctx, item); err != nil {
		p.log.Error("delete handler failed", zap.Error(err), zap.String("deployment_id", item.DeploymentID.String()))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// publish emits a status_update on the project's metrics channel. Failures
// are logged, not propagated: a missed status event is caught up by the
// next one, and the cache is not the system of record.
func (p *Provisioner) publish(ctx context.Context, projectID, deploymentID uuid.UUID, status domain.DeploymentStatus) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	channel := fmt.Sprintf("project:%s:metrics", projectID)
	update := domain.NewStatusUpdate(deploymentID, status, time.Now().Unix())
	if err := p.cache.Publish(pctx, channel, update); err != nil {
		p.log.Warn("publish status update failed", zap.Error(err), zap.String("deployment_id", deploymentID.String()))
	}
}
