package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		wantOrder string
		wantNotif string
	}{
		{name: "empty", ctx: context.Background()},
		{name: "order only", ctx: WithOrderID(context.Background(), "ORD-123"), wantOrder: "ORD-123"},
		{name: "notification only", ctx: WithNotificationID(context.Background(), "n-1"), wantNotif: "n-1"},
		{name: "both", ctx: WithNotification(context.Background(), "ORD-1", "n-1"), wantOrder: "ORD-1", wantNotif: "n-1"},
		{name: "empty ids skipped", ctx: WithNotification(context.Background(), "", ""), wantOrder: "", wantNotif: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOrder, GetOrderID(tt.ctx))
			assert.Equal(t, tt.wantNotif, GetNotificationID(tt.ctx))
		})
	}
}
