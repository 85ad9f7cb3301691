package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profiledUser(end *time.Time) *User {
	return &User{
		TelegramID:       1,
		SubscriptionEnd:  end,
		VlessProfileData: `{"email":"tg1","uuid":"abc"}`,
	}
}

func TestClassifySubscription(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		user     func() *User
		expected SubscriptionState
	}{
		{
			name:     "нет даты окончания",
			user:     func() *User { return profiledUser(nil) },
			expected: StateInactive,
		},
		{
			name: "нет профиля",
			user: func() *User {
				end := now.Add(time.Hour)
				u := profiledUser(&end)
				u.VlessProfileData = ""
				return u
			},
			expected: StateInactive,
		},
		{
			name: "до окончания больше суток",
			user: func() *User {
				end := now.Add(25 * time.Hour)
				return profiledUser(&end)
			},
			expected: StateActive,
		},
		{
			name: "ровно 24 часа - граница окна включительно",
			user: func() *User {
				end := now.Add(24 * time.Hour)
				return profiledUser(&end)
			},
			expected: StateExpiring24h,
		},
		{
			name: "ровно 2 часа - граница узкого окна включительно",
			user: func() *User {
				end := now.Add(2 * time.Hour)
				return profiledUser(&end)
			},
			expected: StateExpiring2h,
		},
		{
			name: "дата окончания равна текущему моменту",
			user: func() *User {
				end := now
				return profiledUser(&end)
			},
			expected: StateExpired,
		},
		{
			name: "дата окончания в прошлом",
			user: func() *User {
				end := now.Add(-time.Minute)
				return profiledUser(&end)
			},
			expected: StateExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySubscription(tt.user(), now))
		})
	}
}

func TestUser_ParseProfile(t *testing.T) {
	t.Run("корректный профиль", func(t *testing.T) {
		u := &User{VlessProfileData: `{"email":"tg1","uuid":"abc","url":"vless://abc@host:443"}`}
		profile, err := u.ParseProfile()
		require.NoError(t, err)
		assert.Equal(t, "tg1", profile.Email)
		assert.Equal(t, "abc", profile.UUID)
	})

	t.Run("пустые данные - нет профиля и нет ошибки", func(t *testing.T) {
		u := &User{}
		profile, err := u.ParseProfile()
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("не JSON", func(t *testing.T) {
		u := &User{VlessProfileData: "garbage"}
		_, err := u.ParseProfile()
		assert.ErrorIs(t, err, ErrMalformedProfile)
	})

	t.Run("JSON без email", func(t *testing.T) {
		u := &User{VlessProfileData: `{"uuid":"abc"}`}
		_, err := u.ParseProfile()
		assert.ErrorIs(t, err, ErrMalformedProfile)
	})
}

func TestVlessProfile_Marshal(t *testing.T) {
	p := &VlessProfile{Email: "tg1", UUID: "abc", URL: "vless://abc@host:443"}
	data, err := p.Marshal()
	require.NoError(t, err)

	u := &User{VlessProfileData: data}
	parsed, err := u.ParseProfile()
	require.NoError(t, err)
	assert.Equal(t, p.Email, parsed.Email)
	assert.Equal(t, p.URL, parsed.URL)
}
