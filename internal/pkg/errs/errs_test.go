package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewErrorUsesTemplate(t *testing.T) {
	err := NewError(ErrLobbyNotFound)

	if err.Code != ErrLobbyNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ErrLobbyNotFound)
	}
	if err.Message != "Lobby not found." {
		t.Errorf("Message = %q, want %q", err.Message, "Lobby not found.")
	}
	if err.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusNotFound)
	}
}

func TestNewErrorAppliesDetails(t *testing.T) {
	err := NewError(ErrTransportClosed, 5)

	want := "Realtime connection lost after 5 attempts."
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	err := NewError(999999)

	if err.Code != ErrUnknown {
		t.Errorf("Code = %d, want %d", err.Code, ErrUnknown)
	}
}

func TestNewErrorWithMessageOverridesTemplate(t *testing.T) {
	err := NewErrorWithMessage(ErrLoginFailed, "No active account found with the given credentials")

	if err.Code != ErrLoginFailed {
		t.Errorf("Code = %d, want %d", err.Code, ErrLoginFailed)
	}
	if err.Message != "No active account found with the given credentials" {
		t.Errorf("Message = %q", err.Message)
	}

	// An empty override keeps the template message.
	kept := NewErrorWithMessage(ErrLoginFailed, "")
	if kept.Message != "Login failed" {
		t.Errorf("Message = %q, want %q", kept.Message, "Login failed")
	}
}

func TestCodeOfUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("joining lobby: %w", NewError(ErrLobbyFull))

	if got := CodeOf(wrapped); got != ErrLobbyFull {
		t.Errorf("CodeOf(wrapped) = %d, want %d", got, ErrLobbyFull)
	}
	if !Is(wrapped, ErrLobbyFull) {
		t.Error("Is(wrapped, ErrLobbyFull) = false, want true")
	}
	if got := CodeOf(errors.New("plain")); got != ErrUnknown {
		t.Errorf("CodeOf(plain) = %d, want %d", got, ErrUnknown)
	}
}
