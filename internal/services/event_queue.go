package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/openkite/kitehub/internal/config"
	"github.com/openkite/kitehub/pkg/logger"
)

const (
	TaskTypeMemberEvent = "member:event"
)

// Membership transition actions carried by member events.
const (
	ActionMemberAdded     = "member_added"
	ActionRequestApproved = "request_approved"
	ActionMemberRemoved   = "member_removed"
	ActionMembersImported = "members_imported"
)

// MemberEvent describes one committed membership transition. Events
// feed the activity collaborator; losing one never affects the
// membership store itself.
type MemberEvent struct {
	EventID   string `json:"event_id"`
	ProjectID uint   `json:"project_id"`
	ActorID   uint   `json:"actor_id"`
	UserID    uint   `json:"user_id"`
	Action    string `json:"action"`
}

func NewMemberEvent(projectID, actorID, userID uint, action string) *MemberEvent {
	return &MemberEvent{
		EventID:   uuid.New().String(),
		ProjectID: projectID,
		ActorID:   actorID,
		UserID:    userID,
		Action:    action,
	}
}

// EventQueue defines the interface for member-event processing
type EventQueue interface {
	// Enqueue adds an event to the queue
	Enqueue(event *MemberEvent) error
	// IsAsync returns true if the queue processes events asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global event queue instance
var (
	globalEventQueue EventQueue
	eventQueueOnce   sync.Once
)

// InitEventQueue initializes the global event queue based on config
func InitEventQueue(cfg *config.Config) EventQueue {
	eventQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncEventQueue(&cfg.Redis)
			if err != nil {
				logger.Infof("[EventQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalEventQueue = NewSyncEventQueue()
			} else {
				logger.Infof("[EventQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalEventQueue = queue
			}
		} else {
			logger.Infof("[EventQueue] Sync queue initialized (Redis disabled)")
			globalEventQueue = NewSyncEventQueue()
		}
	})
	return globalEventQueue
}

// AsyncEventQueue implements EventQueue using asynq (Redis-based)
type AsyncEventQueue struct {
	client *asynq.Client
}

// NewAsyncEventQueue creates a new Redis-based async queue
func NewAsyncEventQueue(cfg *config.RedisConfig) (*AsyncEventQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncEventQueue{client: client}, nil
}

// Enqueue adds a member event to the async queue
func (q *AsyncEventQueue) Enqueue(event *MemberEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeMemberEvent, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().
		Str("task_id", info.ID).
		Str("event_id", event.EventID).
		Str("action", event.Action).
		Msg("member event enqueued")
	return nil
}

func (q *AsyncEventQueue) IsAsync() bool { return true }

func (q *AsyncEventQueue) Close() error {
	return q.client.Close()
}

// SyncEventQueue processes events inline. Used when Redis is disabled
// or unreachable.
type SyncEventQueue struct {
	processor func(context.Context, *MemberEvent) error
}

func NewSyncEventQueue() *SyncEventQueue {
	return &SyncEventQueue{}
}

// SetProcessor sets the function invoked for each event
func (q *SyncEventQueue) SetProcessor(processor func(context.Context, *MemberEvent) error) {
	q.processor = processor
}

func (q *SyncEventQueue) Enqueue(event *MemberEvent) error {
	if q.processor == nil {
		return nil
	}
	return q.processor(context.Background(), event)
}

func (q *SyncEventQueue) IsAsync() bool { return false }

func (q *SyncEventQueue) Close() error { return nil }
