package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"studio-backend/internal/taskpoll"
)

// Seedance and Seedream both live on BytePlus ModelArk.
const arkTasksPath = "/api/v3/contents/generations/tasks"

type arkTask struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// pollArkTask waits for a content-generation task and returns its media URL.
func pollArkTask(ctx context.Context, engine string, client *vendorClient, opts taskpoll.Options, taskID string) (string, error) {
	st, err := taskpoll.Poll(ctx, opts, func(ctx context.Context, _ int) (taskpoll.Status, error) {
		resp, err := client.do(ctx, http.MethodGet, arkTasksPath+"/"+taskID, nil)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		raw, err := parseResponse[json.RawMessage](engine, resp)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		var task arkTask
		if err := json.Unmarshal(raw, &task); err != nil {
			return taskpoll.Status{}, fmt.Errorf("%s: decode task: %w", engine, err)
		}
		return arkStatus(engine, task, raw), nil
	})
	if err != nil {
		return "", err
	}
	return st.URL, nil
}

func arkStatus(engine string, task arkTask, raw json.RawMessage) taskpoll.Status {
	switch task.Status {
	case "succeeded":
		url, ok := ExtractMediaURL(raw)
		if !ok {
			return taskpoll.Status{State: task.Status, Err: fmt.Errorf("%s: %w", engine, ErrNoMedia)}
		}
		return taskpoll.Status{Done: true, URL: url, State: task.Status}
	case "failed", "cancelled", "expired":
		return taskpoll.Status{State: task.Status, Err: arkFailure(engine, task)}
	default:
		return taskpoll.Status{State: task.Status}
	}
}

func arkFailure(engine string, task arkTask) error {
	if task.Error == nil {
		return fmt.Errorf("%s: task %s %s", engine, task.ID, task.Status)
	}
	if strings.Contains(task.Error.Code, "SensitiveContent") || strings.Contains(task.Error.Code, "Moderation") {
		return safetyFiltered(engine, task.Error.Message)
	}
	return fmt.Errorf("%s: %s: %s", engine, task.Error.Code, task.Error.Message)
}
