package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/ternarybob/nuntio/internal/common"
)

func TestSendURL(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		text  string
		want  string
	}{
		{
			name:  "simple",
			phone: "+6591234567",
			text:  "hello",
			want:  "https://web.whatsapp.com/send?phone=%2B6591234567&text=hello",
		},
		{
			name:  "message with spaces and braces",
			phone: "+6591234567",
			text:  "Hi {Name}, welcome",
			want:  "https://web.whatsapp.com/send?phone=%2B6591234567&text=Hi+%7BName%7D%2C+welcome",
		},
		{
			name:  "unicode message",
			phone: "+14155550100",
			text:  "café",
			want:  "https://web.whatsapp.com/send?phone=%2B14155550100&text=caf%C3%A9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sendURL("https://web.whatsapp.com", tt.phone, tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession()
	assert.Equal(t, SessionIdle, s.Status().State)
	_, ok := s.QR()
	assert.False(t, ok)

	s.setQR("QkFTRTY0")
	status := s.Status()
	assert.Equal(t, SessionWaitingForQR, status.State)
	assert.True(t, status.HasQR)
	assert.False(t, status.Ready)

	qr, ok := s.QR()
	assert.True(t, ok)
	assert.Equal(t, "QkFTRTY0", qr)

	// Authentication clears the pending QR.
	s.setState(SessionAuthenticated)
	status = s.Status()
	assert.True(t, status.Ready)
	assert.False(t, status.HasQR)
	_, ok = s.QR()
	assert.False(t, ok)
}

func TestNewChromeDriver_Defaults(t *testing.T) {
	cfg := common.NewDefaultConfig().WhatsApp

	d := NewChromeDriver(cfg, 0, true, nil, common.GetLogger())
	assert.NotNil(t, d.session, "a session tracker is always attached")
	assert.NotNil(t, d.limiter)

	// Zero pacing falls back to the default interval rather than
	// an unlimited burst.
	assert.Equal(t, rate.Every(1500*time.Millisecond), d.limiter.Limit())
}
