package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScreenAcceptsBenignCode(t *testing.T) {
	s := New(5 * time.Minute)
	v := s.Screen("python", "print('hello world')")
	assert.True(t, v.Valid)
	assert.Empty(t, v.Reason)
}

func TestScreenRejectsProcessCreation(t *testing.T) {
	s := New(5 * time.Minute)
	v := s.Screen("python", "import os; os.system('ls')")
	assert.False(t, v.Valid)
	assert.Equal(t, "process-creation", v.Reason)
}

func TestScreenRejectsLanguageAgnosticPattern(t *testing.T) {
	s := New(5 * time.Minute)
	v := s.Screen("ruby", "puts `ls -la`")
	assert.False(t, v.Valid)
}

func TestScreenIsPerLanguage(t *testing.T) {
	s := New(5 * time.Minute)
	// std::process::Command is rust-specific and should not trip python screening.
	v := s.Screen("python", "# std::process::Command")
	assert.True(t, v.Valid)
}

func TestScreenMemoizesVerdict(t *testing.T) {
	s := New(5 * time.Minute)
	code := "import os; os.system('ls')"
	first := s.Screen("python", code)
	second := s.Screen("python", code)
	assert.Equal(t, first, second)
	assert.Len(t, s.memo, 1)
}

func TestScreenMemoExpiresAfterTTL(t *testing.T) {
	s := New(10 * time.Millisecond)
	code := "print(1)"
	s.Screen("python", code)
	time.Sleep(20 * time.Millisecond)

	s.mu.Lock()
	e := s.memo[digest("python", code)]
	s.mu.Unlock()
	assert.True(t, time.Now().After(e.expireAt))
}

func TestDigestIsStableAndDistinguishesLanguage(t *testing.T) {
	a := digest("python", "print(1)")
	b := digest("javascript", "print(1)")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, digest("python", "print(1)"))
}
