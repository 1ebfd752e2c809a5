package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/service"
)

func TestResolveRequest(t *testing.T) {
	tests := []struct {
		name    string
		opts    replayOptions
		want    *service.LoadRequest
		wantErr error
	}{
		{
			name: "race",
			opts: replayOptions{year: 2025, round: 3},
			want: &service.LoadRequest{Key: model.SessionKey{
				Year: 2025, Round: 3, Type: model.SessionTypeRace,
			}},
		},
		{
			name: "sprint with refresh",
			opts: replayOptions{year: 2024, round: 6, sprint: true, refresh: true},
			want: &service.LoadRequest{
				Key:          model.SessionKey{Year: 2024, Round: 6, Type: model.SessionTypeSprint},
				ForceRefresh: true,
			},
		},
		{
			name:    "missing round",
			opts:    replayOptions{year: 2024},
			wantErr: model.ErrInvalidSessionKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveRequest(context.Background(), nil, &tt.opts, false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupFileLogger(t *testing.T) {
	defaultLogger := log.Default()
	t.Cleanup(func() { log.ResetDefault(defaultLogger) })
	path := t.TempDir() + "/logs/replay.log"
	closeLog, err := setupFileLogger(path)
	require.NoError(t, err)
	closeLog()
	assert.FileExists(t, path)
}
