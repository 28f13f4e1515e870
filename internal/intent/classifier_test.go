package intent

import (
	"testing"

	"github.com/citaflow/citaflow/internal/engine"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name  string
		text  string
		state engine.State
		want  engine.Intent
	}{
		{"book request", "quiero agendar una cita", engine.StateNew, engine.IntentBook},
		{"book via availability", "¿tienen horario disponible mañana?", engine.StateNeedIntent, engine.IntentBook},
		{"reschedule", "necesito cambiar mi cita a otra fecha", engine.StateNeedIntent, engine.IntentReschedule},
		{"cancel", "quiero cancelar la cita", engine.StateBooked, engine.IntentCancel},
		{"cancel implicit", "ya no voy a poder ir", engine.StateNeedIntent, engine.IntentCancel},
		{"info", "¿cuánto cuesta la consulta?", engine.StateNeedIntent, engine.IntentInfo},
		{"info accented", "INFORMACIÓN de precios por favor", engine.StateNew, engine.IntentInfo},
		{"human over booking words", "necesito hablar con un humano", engine.StateNeedService, engine.IntentHuman},
		{"human agent", "pásame con un agente", engine.StateProposeSlots, engine.IntentHuman},
		{"unknown outside flow", "asdfgh", engine.StateNew, engine.IntentUnknown},
		{"unknown greeting", "buenos dias", engine.StateNeedIntent, engine.IntentUnknown},
		{"continuation in service step", "limpieza facial", engine.StateNeedService, engine.IntentBook},
		{"continuation in date step", "el martes por la tarde", engine.StateNeedDatePref, engine.IntentBook},
		{"continuation picking slot", "2", engine.StateProposeSlots, engine.IntentBook},
		{"continuation confirming", "si, ese", engine.StateNeedConfirmSlot, engine.IntentBook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text, tt.state); got != tt.want {
				t.Fatalf("Classify(%q, %s) = %s, want %s", tt.text, tt.state, got, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier()
	for i := 0; i < 3; i++ {
		if got := c.Classify("quiero reservar", engine.StateNew); got != engine.IntentBook {
			t.Fatalf("classification changed across calls: %s", got)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Información", "informacion"},
		{"¿Dónde están?", "¿donde estan?"},
		{"CANCELAR", "cancelar"},
		{"ya está", "ya esta"},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
