package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFollowupSweep = "followup.sweep"

type FollowupSweepPayload struct {
	Reason string `json:"reason,omitempty"`
}

func NewFollowupSweepTask(payload FollowupSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupSweep, data), nil
}

func ParseFollowupSweepPayload(task *asynq.Task) (FollowupSweepPayload, error) {
	var payload FollowupSweepPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowupSweepPayload{}, err
	}
	return payload, nil
}
