package progress

import (
	"testing"
)

func TestNewMultiSpinner(t *testing.T) {
	spinner := NewMultiSpinner()
	if spinner == nil {
		t.Fatal("failed to create a spinner")
	}
}

func TestMultiSpinner(t *testing.T) {
	spinner := NewMultiSpinner()
	if spinner == nil {
		t.Fatal("failed to create a spinner")
	}
	if spinner.AddSpinner("A") != nil {
		t.Fatal("failed to add spinner")
	}
	if spinner.AddSpinner("B") != nil {
		t.Fatal("failed to add spinner")
	}
	if spinner.AddSpinner("A") == nil {
		t.Fatal("added spinner with same label")
	}
	spinner.Start()

	if spinner.Status("A", "FOO") != nil {
		t.Fatal("failed to update spinner status")
	}
	if spinner.Status("B", "BAR") != nil {
		t.Fatal("failed to update spinner status")
	}
	if spinner.Status("C", "WOOPS") == nil {
		t.Fatal("updated status of non-existent spinner")
	}
	spinner.Finish()
}

func TestMultiSpinnerFreezesElapsedOnFinish(t *testing.T) {
	spinner := NewMultiSpinner()
	if err := spinner.AddSpinner("A"); err != nil {
		t.Fatalf("failed to add spinner: %v", err)
	}
	spinner.Start()
	spinner.Finish()

	if !spinner.spinners[0].done {
		t.Fatal("expected the spinner to be marked done after Finish")
	}
	frozen := spinner.spinners[0].elapsed()
	if frozen < 0 {
		t.Fatal("expected a non-negative elapsed duration")
	}
	if got := spinner.spinners[0].elapsed(); got != frozen {
		t.Fatal("expected elapsed to stay frozen after Finish, not keep advancing")
	}
}
