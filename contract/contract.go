package contract

import (
	"context"
	"reflect"

	"supportdesk/domain"
	"supportdesk/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker
// interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives domain events for one connected observer.
// Consume must not block longer than the bus delivery timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks connected participants and the channels they joined.
// A channel is either one session or the global agent channel.
type IRegistry interface {
	Connect(p domain.Participant, sink EventSink)
	Disconnect(participantID string)
	JoinSession(participantID string, sessionID domain.SessionID)
	LeaveSession(participantID string, sessionID domain.SessionID)
	JoinGlobal(participantID string)
	SinksForSession(sessionID domain.SessionID) []EventSink
	GlobalSinks() []EventSink
	SinksForParticipant(participantID string) []EventSink
	SessionsOf(participantID string) []domain.SessionID
}

// IBus is the coordination surface between transports, controllers and
// the stores: commands in, validated-and-persisted events out.
type IBus interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	Typing(cmd domain.TypingCommand)
	MarkRead(cmd domain.MarkReadCommand) error
	Close(ctx context.Context, cmd domain.CloseSessionCommand) (domain.Session, error)
	Connect(p domain.Participant, sink EventSink)
	Disconnect(p domain.Participant)
	JoinSession(p domain.Participant, sessionID domain.SessionID) error
	LeaveSession(p domain.Participant, sessionID domain.SessionID)
	JoinGlobal(p domain.Participant) error
}
