package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
)

func newTestModem(opts ModemOptions) *Modem {
	opts.Wait = func(time.Duration) {}
	opts.Now = func() time.Time { return time.Date(2024, 7, 15, 16, 20, 16, 0, time.UTC) }
	return NewModem(opts)
}

func TestModem_AnswersLikeTheModule(t *testing.T) {
	m := newTestModem(ModemOptions{Echo: true})

	if _, err := m.Write([]byte("AT+CGPS?\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 256)
	n, err := m.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	got := string(buf[:n])
	if !strings.HasPrefix(got, "AT+CGPS?\r\r\n") {
		t.Errorf("reply %q does not start with the echo", got)
	}
	if !strings.Contains(got, "+CGPS: 0,1") {
		t.Errorf("reply %q, want receiver reported off", got)
	}

	n, err = m.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("Read() on drained buffer = %d, %v, want 0, nil", n, err)
	}
}

func TestModem_EnableTwiceErrors(t *testing.T) {
	m := newTestModem(ModemOptions{})
	m.SetEnabled(true)

	if got := m.answer("AT+CGPS=1"); !strings.Contains(got, "ERROR") {
		t.Errorf("answer(AT+CGPS=1) = %q, want ERROR while running", got)
	}
	if got := m.answer("AT+CGPS=0"); !strings.Contains(got, "OK") {
		t.Errorf("answer(AT+CGPS=0) = %q, want OK", got)
	}
	if m.Enabled() {
		t.Error("Enabled() = true after AT+CGPS=0")
	}
}

func TestModem_DrivesEngine(t *testing.T) {
	m := newTestModem(ModemOptions{LockAfter: 2, Echo: true})
	m.SetEnabled(true)

	engine, err := gps.NewEngine(m, gps.WithSleep(retry.NoSleep))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	ctx := context.Background()

	if err := engine.EnableGPS(ctx); err != nil {
		t.Fatalf("EnableGPS() error = %v", err)
	}
	if !m.Enabled() {
		t.Fatal("receiver not enabled after EnableGPS()")
	}

	for i := range 2 {
		fix, err := engine.GetFix(ctx)
		if err != nil {
			t.Fatalf("GetFix() #%d error = %v", i, err)
		}
		if fix.Status != gps.NoFixYet {
			t.Errorf("GetFix() #%d status = %v, want no fix before lock", i, fix.Status)
		}
	}

	fix, err := engine.GetFix(ctx)
	if err != nil {
		t.Fatalf("GetFix() error = %v", err)
	}
	if fix.Status != gps.Valid {
		t.Fatalf("GetFix() status = %v, want valid after lock", fix.Status)
	}
	if fix.Latitude < 43.3 || fix.Latitude > 43.4 || fix.Longitude > -8.3 || fix.Longitude < -8.5 {
		t.Errorf("GetFix() = %+v, want a position near the route origin", fix)
	}
}

func TestDegreesMinutes(t *testing.T) {
	text, hemi := degreesMinutes(-8.408309566666667, 3, "E", "W")
	if hemi != "W" {
		t.Errorf("hemisphere = %q, want W", hemi)
	}
	if text != "00824.498574" {
		t.Errorf("text = %q, want 00824.498574", text)
	}

	fix := gps.Parse("+CGPSINFO: " + text + "," + hemi + ",4319.736021,N,150724,162016.0,176.0,0.0,")
	if fix.Status != gps.NoFixYet {
		t.Errorf("Parse() with swapped axes = %+v, want rejection", fix)
	}
}
