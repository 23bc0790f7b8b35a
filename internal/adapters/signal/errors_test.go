package signal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("join: %w", domain.ErrNameTaken), CodeNameTaken},
		{domain.ErrNameEmpty, CodeBadPayload},
		{domain.ErrNameTooLong, CodeBadPayload},
		{domain.ErrNotJoined, CodeNotJoined},
		{domain.ErrParticipantClosed, CodeNotJoined},
		{fmt.Errorf("bob in room r1: %w", domain.ErrSenderNotFound), CodeSenderNotFound},
		{domain.ErrNotInRoom, CodeNotInRoom},
		{domain.ErrRoomClosed, CodeRoomUnavailable},
		{errors.New("ice failed"), CodeNegotiationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, errorCode(tt.err, CodeNegotiationFailed))
		})
	}
}
