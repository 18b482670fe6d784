package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{"Valid email", "test@example.com", true},
		{"Valid email with subdomain", "user@mail.example.com", true},
		{"Valid email with plus", "user+tag@example.com", true},
		{"Invalid email - no @", "testexample.com", false},
		{"Invalid email - no domain", "test@", false},
		{"Invalid email - multiple @", "test@@example.com", false},
		{"Invalid email - empty", "", false},
		{"Invalid email - spaces", "test @example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateEmail(tt.email))
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"Valid username", "testuser", nil},
		{"Valid with dot and dash", "test.user-1", nil},
		{"Valid minimum length", "abc", nil},
		{"Valid maximum length", strings.Repeat("a", 32), nil},
		{"Too short", "ab", ErrUsernameTooShort},
		{"Too long", strings.Repeat("a", 33), ErrUsernameTooLong},
		{"Invalid characters", "bad user", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 73)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("password123"))
}

func TestValidatePlatformURL(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		url      string
		wantErr  error
	}{
		{"youtube watch", PlatformYouTube, "https://www.youtube.com/watch?v=abc", nil},
		{"youtube short link", PlatformYouTube, "https://youtu.be/abc", nil},
		{"instagram reel", PlatformInstagram, "https://www.instagram.com/reel/xyz/", nil},
		{"tiktok short link", PlatformTikTok, "https://vm.tiktok.com/ZM123/", nil},
		{"empty", PlatformYouTube, "  ", ErrURLRequired},
		{"wrong scheme", PlatformYouTube, "ftp://youtube.com/x", ErrInvalidURL},
		{"wrong host", PlatformTikTok, "https://evil.example.com/tiktok.com", ErrInvalidURL},
		{"suffix trick", PlatformYouTube, "https://notyoutube.com/watch", ErrInvalidURL},
		{"unknown platform", Platform("vimeo"), "https://vimeo.com/1", ErrUnsupportedPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlatformURL(tt.platform, tt.url)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	p, err := ParsePlatform(" TikTok ")
	require.NoError(t, err)
	assert.Equal(t, PlatformTikTok, p)

	_, err = ParsePlatform("vimeo")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatVideo, f)

	_, err = ParseFormat("gif")
	assert.ErrorIs(t, err, ErrInvalidInput)

	q, err := ParseQuality("480P")
	require.NoError(t, err)
	assert.Equal(t, 480, q.MaxHeight())
	assert.Equal(t, 1080, QualityBest.MaxHeight())

	_, err = ParseQuality("4k")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPIKey_IsUsable(t *testing.T) {
	now := time.Now()

	key := &APIKey{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, key.IsUsable(now))

	key.IsActive = false
	assert.False(t, key.IsUsable(now))

	key = &APIKey{IsActive: true, ExpiresAt: now}
	assert.True(t, key.IsExpired(now), "expiry instant itself counts as expired")
	assert.False(t, key.IsUsable(now))
}

func TestAPIKey_MaskedKey(t *testing.T) {
	assert.Equal(t, "abcdefgh...", (&APIKey{Key: "abcdefghijklmnop"}).MaskedKey())
	assert.Equal(t, "short", (&APIKey{Key: "short"}).MaskedKey())
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://www.youtube.com/watch?v=abc", PlatformYouTube},
		{"https://youtu.be/abc", PlatformYouTube},
		{"https://m.tiktok.com/@u/video/1", PlatformTikTok},
		{"https://www.instagram.com/reel/xyz/", PlatformInstagram},
	}
	for _, tt := range tests {
		got, err := DetectPlatform(tt.url)
		assert.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := DetectPlatform("https://vimeo.com/1")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}
