package realtime

import "taskfolio/models"

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// TaskEvent is the payload of a taskUpdated message. Task is set for create
// and update, TaskID for delete.
type TaskEvent struct {
	Action Action       `json:"action"`
	Task   *models.Task `json:"task,omitempty"`
	TaskID uint         `json:"task_id,omitempty"`
}

func Created(t models.Task) TaskEvent { return TaskEvent{Action: ActionCreate, Task: &t} }
func Updated(t models.Task) TaskEvent { return TaskEvent{Action: ActionUpdate, Task: &t} }
func Deleted(id uint) TaskEvent       { return TaskEvent{Action: ActionDelete, TaskID: id} }

// Event names on the wire.
const (
	EventJoinFolder  = "joinFolder"
	EventLeaveFolder = "leaveFolder"
	EventJoined      = "joinedFolder"
	EventLeft        = "leftFolder"
	EventTaskUpdated = "taskUpdated"
	EventError       = "error"
)

// Message is a single websocket frame in either direction.
type Message struct {
	Event    string     `json:"event"`
	FolderID uint       `json:"folder_id,omitempty"`
	Data     *TaskEvent `json:"data,omitempty"`
	Message  string     `json:"message,omitempty"`
}
