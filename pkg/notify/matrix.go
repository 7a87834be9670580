package notify

import (
	"context"
	"fmt"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Matrix posts the task summary into one room with an access token. It
// never syncs, so it sees no inbound events.
type Matrix struct {
	client *mautrix.Client
	room   id.RoomID
}

func NewMatrix(homeserver, roomID, token string) (*Matrix, error) {
	if token == "" {
		return nil, fmt.Errorf("notify: matrix access token not set")
	}
	client, err := mautrix.NewClient(homeserver, "", token)
	if err != nil {
		return nil, fmt.Errorf("notify: creating matrix client: %w", err)
	}
	return &Matrix{client: client, room: id.RoomID(roomID)}, nil
}

func (m *Matrix) Name() string { return "matrix" }

func (m *Matrix) Notify(ctx context.Context, task *a2a.Task) error {
	if _, err := m.client.SendText(ctx, m.room, Summary(task)); err != nil {
		return fmt.Errorf("notify: matrix: %w", err)
	}
	return nil
}
