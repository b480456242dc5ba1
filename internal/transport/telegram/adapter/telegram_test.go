package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestSplitShortTextUntouched(t *testing.T) {
	require.Equal(t, []string{"hello"}, splitTelegramText("hello", 10))
}

func TestSplitPrefersNewline(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10)
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitHardCut(t *testing.T) {
	s := strings.Repeat("x", 25)
	got := splitTelegramText(s, 10)
	require.Len(t, got, 3)
	for _, c := range got {
		require.LessOrEqual(t, len([]rune(c)), 10)
	}
	require.Equal(t, s, strings.Join(got, ""))
}

func TestSplitCountsRunes(t *testing.T) {
	s := strings.Repeat("é", 12)
	got := splitTelegramText(s, 10)
	require.Equal(t, []string{strings.Repeat("é", 10), "éé"}, got)
}

func TestToMessage(t *testing.T) {
	req := require.New(t)
	m := toMessage(&tele.Message{
		ID:       7,
		Unixtime: 1700000000,
		Text:     "hi",
		Chat:     &tele.Chat{ID: -100},
		Sender:   &tele.User{ID: 42, FirstName: "Ada", Username: "ada"},
	})
	req.NotNil(m)
	req.Equal(7, m.ID)
	req.Equal(int64(-100), m.ChatID)
	req.Equal(int64(1700000000), m.Date)
	req.True(m.HasText)
	req.Equal("hi", m.Text)
	req.Equal(int64(42), m.From.ID)
	req.Equal("", m.From.LastName)

	req.Nil(toMessage(nil))
	req.Nil(toMessage(&tele.Message{ID: 1}))

	anon := toMessage(&tele.Message{Chat: &tele.Chat{ID: 5}})
	req.False(anon.HasText)
	req.Nil(anon.From)
}

func TestSendLimiter(t *testing.T) {
	l := newSendLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}

	l = newSendLimiter(1)
	require.NoError(t, l.Wait(ctx))
	require.Error(t, l.Wait(ctx))
}
