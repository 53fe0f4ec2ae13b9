package mesh

import (
	"errors"
	"slices"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		actions []Action
		wantErr error
	}{
		{"discovered starts offer", StateIdle, Event{Kind: EventDiscovered}, StateOfferSent, []Action{ActionSendOffer}, nil},
		{"offer in idle answers", StateIdle, Event{Kind: EventOffer}, StateOfferReceived, []Action{ActionAnswerOffer}, nil},
		{"answer sent", StateOfferReceived, Event{Kind: EventAnswerSent}, StateAnswerExchanged, nil, nil},
		{"answer applied", StateOfferSent, Event{Kind: EventAnswer}, StateAnswerExchanged, []Action{ActionApplyAnswer}, nil},
		{"connected establishes", StateAnswerExchanged, Event{Kind: EventConnected}, StateEstablished, []Action{ActionNotifyEstablished}, nil},
		{"connected twice", StateEstablished, Event{Kind: EventConnected}, StateEstablished, nil, nil},

		{"glare remote wins", StateOfferSent, Event{Kind: EventOffer, RemoteWins: true}, StateOfferReceived, []Action{ActionResetTransport, ActionAnswerOffer}, nil},
		{"glare local wins", StateOfferSent, Event{Kind: EventOffer}, StateOfferSent, nil, nil},

		{"remote candidate while offering", StateOfferSent, Event{Kind: EventCandidate}, StateOfferSent, []Action{ActionAddCandidate}, nil},
		{"remote candidate while answering", StateOfferReceived, Event{Kind: EventCandidate}, StateOfferReceived, []Action{ActionAddCandidate}, nil},
		{"remote candidate after answer", StateAnswerExchanged, Event{Kind: EventCandidate}, StateAnswerExchanged, []Action{ActionAddCandidate}, nil},
		{"late candidate ignored", StateEstablished, Event{Kind: EventCandidate}, StateEstablished, nil, nil},
		{"candidate before offer", StateIdle, Event{Kind: EventCandidate}, StateIdle, nil, ErrUnexpectedEvent},
		{"local candidate relayed", StateOfferSent, Event{Kind: EventLocalCandidate}, StateOfferSent, []Action{ActionSendCandidate}, nil},
		{"local candidate after establish", StateEstablished, Event{Kind: EventLocalCandidate}, StateEstablished, []Action{ActionSendCandidate}, nil},
		{"local candidate in idle", StateIdle, Event{Kind: EventLocalCandidate}, StateIdle, nil, ErrUnexpectedEvent},

		{"rejected fails", StateOfferReceived, Event{Kind: EventRejected}, StateFailed, []Action{ActionTeardown, ActionNotifyFailed}, nil},
		{"path failure fails", StateAnswerExchanged, Event{Kind: EventPathFailed}, StateFailed, []Action{ActionTeardown, ActionNotifyFailed}, nil},
		{"established path failure", StateEstablished, Event{Kind: EventPathFailed}, StateFailed, []Action{ActionTeardown, ActionNotifyFailed}, nil},

		{"gone closes", StateEstablished, Event{Kind: EventGone}, StateClosed, []Action{ActionTeardown}, nil},
		{"gone from idle", StateIdle, Event{Kind: EventGone}, StateClosed, []Action{ActionTeardown}, nil},
		{"gone after failure", StateFailed, Event{Kind: EventGone}, StateClosed, []Action{ActionTeardown}, nil},
		{"gone twice", StateClosed, Event{Kind: EventGone}, StateClosed, nil, nil},

		{"failed ignores offer", StateFailed, Event{Kind: EventOffer}, StateFailed, nil, nil},
		{"closed ignores connected", StateClosed, Event{Kind: EventConnected}, StateClosed, nil, nil},

		{"answer without offer", StateIdle, Event{Kind: EventAnswer}, StateIdle, nil, ErrUnexpectedEvent},
		{"answer to answerer", StateOfferReceived, Event{Kind: EventAnswer}, StateOfferReceived, nil, ErrUnexpectedEvent},
		{"connected before answer", StateOfferSent, Event{Kind: EventConnected}, StateOfferSent, nil, ErrUnexpectedEvent},
		{"offer after establish", StateEstablished, Event{Kind: EventOffer}, StateEstablished, nil, ErrUnexpectedEvent},
		{"discovered twice", StateOfferSent, Event{Kind: EventDiscovered}, StateOfferSent, nil, ErrUnexpectedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, actions, err := Transition(tt.state, tt.event)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("state=%v, want %v", got, tt.want)
			}
			if !slices.Equal(actions, tt.actions) {
				t.Fatalf("actions=%v, want %v", actions, tt.actions)
			}
		})
	}
}

func TestTransitionErrorKeepsState(t *testing.T) {
	for s := StateIdle; s <= StateClosed; s++ {
		for k := EventDiscovered; k <= EventGone; k++ {
			next, actions, err := Transition(s, Event{Kind: k})
			if err == nil {
				continue
			}
			if next != s || actions != nil {
				t.Errorf("Transition(%v, %v) error left state=%v actions=%v", s, k, next, actions)
			}
		}
	}
}

func TestEstablishedOnlyFromAnswerExchanged(t *testing.T) {
	for s := StateIdle; s <= StateClosed; s++ {
		for k := EventDiscovered; k <= EventGone; k++ {
			next, _, err := Transition(s, Event{Kind: k, RemoteWins: true})
			if err != nil || next != StateEstablished || s == StateEstablished {
				continue
			}
			if s != StateAnswerExchanged || k != EventConnected {
				t.Errorf("Transition(%v, %v) reached established", s, k)
			}
		}
	}
}

func TestStateStrings(t *testing.T) {
	if got := StateAnswerExchanged.String(); got != "answer-exchanged" {
		t.Fatalf("String()=%q, want answer-exchanged", got)
	}
	if !StateFailed.Terminal() || !StateClosed.Terminal() || StateEstablished.Terminal() {
		t.Fatal("Terminal() mismatch")
	}
	if RoleResponder.String() != "responder" {
		t.Fatalf("Role String()=%q", RoleResponder.String())
	}
}
