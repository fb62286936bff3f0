package tool

import (
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

func TestInfosForBooking(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	infos := reg.Infos(contractx.SpecialistBooking)
	if len(infos) != 3 {
		t.Fatalf("expected 3 tool infos, got %d", len(infos))
	}
	names := map[string]bool{}
	for _, info := range infos {
		names[info.Name] = true
	}
	for _, want := range []string{ToolCheckAvailability, ToolCreateBooking, ToolFindAvailableSlots} {
		if !names[want] {
			t.Fatalf("booking infos missing %s: %v", want, names)
		}
	}
}

func TestInfosForFAQ(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	infos := reg.Infos(contractx.SpecialistFAQ)
	if len(infos) != 1 || infos[0].Name != ToolAnswerFAQ {
		t.Fatalf("unexpected faq infos: %+v", infos)
	}
	if all := reg.Infos(""); len(all) != 6 {
		t.Fatalf("expected 6 tools in total, got %d", len(all))
	}
}

func TestCreateBookingSchema(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	tl, ok := reg.Tool(ToolCreateBooking)
	if !ok {
		t.Fatal("create_booking must be registered")
	}
	got := tl.RequiredArgs()
	want := []string{"patient_id", "practitioner", "slot"}
	if len(got) != len(want) {
		t.Fatalf("required = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("required = %v, want %v", got, want)
		}
	}

	info := tl.Info()
	if info.Desc == "" {
		t.Fatal("expected tool description")
	}
	if info.ParamsOneOf == nil {
		t.Fatal("expected parameters")
	}
}

func TestFindSlotsOptionalArgs(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	tl, _ := reg.Tool(ToolFindAvailableSlots)
	got := tl.RequiredArgs()
	if len(got) != 1 || got[0] != "date" {
		t.Fatalf("required = %v, want [date]", got)
	}
	if dataType("integer") != schema.Integer {
		t.Fatal("integer must map to schema.Integer")
	}
}
