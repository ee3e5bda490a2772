package formz

import "testing"

func TestFormBuilt(t *testing.T) {
	if FormBuilt.Name() != "formz.form.built" {
		t.Errorf("expected name 'formz.form.built', got %q", FormBuilt.Name())
	}
}

func TestFormDisposed(t *testing.T) {
	if FormDisposed.Name() != "formz.form.disposed" {
		t.Errorf("expected name 'formz.form.disposed', got %q", FormDisposed.Name())
	}
}

func TestFieldChanged(t *testing.T) {
	if FieldChanged.Name() != "formz.field.changed" {
		t.Errorf("expected name 'formz.field.changed', got %q", FieldChanged.Name())
	}
}

func TestArrayRestructured(t *testing.T) {
	if ArrayRestructured.Name() != "formz.array.restructured" {
		t.Errorf("expected name 'formz.array.restructured', got %q", ArrayRestructured.Name())
	}
}

func TestNodeStatusChanged(t *testing.T) {
	if NodeStatusChanged.Name() != "formz.node.status.changed" {
		t.Errorf("expected name 'formz.node.status.changed', got %q", NodeStatusChanged.Name())
	}
}

func TestValidationStarted(t *testing.T) {
	if ValidationStarted.Name() != "formz.validation.started" {
		t.Errorf("expected name 'formz.validation.started', got %q", ValidationStarted.Name())
	}
}

func TestValidationSucceeded(t *testing.T) {
	if ValidationSucceeded.Name() != "formz.validation.succeeded" {
		t.Errorf("expected name 'formz.validation.succeeded', got %q", ValidationSucceeded.Name())
	}
}

func TestValidationFailed(t *testing.T) {
	if ValidationFailed.Name() != "formz.validation.failed" {
		t.Errorf("expected name 'formz.validation.failed', got %q", ValidationFailed.Name())
	}
}

func TestValidationCanceled(t *testing.T) {
	if ValidationCanceled.Name() != "formz.validation.canceled" {
		t.Errorf("expected name 'formz.validation.canceled', got %q", ValidationCanceled.Name())
	}
}

func TestAsyncSuperseded(t *testing.T) {
	if AsyncSuperseded.Name() != "formz.validation.superseded" {
		t.Errorf("expected name 'formz.validation.superseded', got %q", AsyncSuperseded.Name())
	}
}

func TestBehaviorRegistered(t *testing.T) {
	if BehaviorRegistered.Name() != "formz.behavior.registered" {
		t.Errorf("expected name 'formz.behavior.registered', got %q", BehaviorRegistered.Name())
	}
}

func TestBehaviorTriggered(t *testing.T) {
	if BehaviorTriggered.Name() != "formz.behavior.triggered" {
		t.Errorf("expected name 'formz.behavior.triggered', got %q", BehaviorTriggered.Name())
	}
}

func TestBehaviorCycleRefused(t *testing.T) {
	if BehaviorCycleRefused.Name() != "formz.behavior.cycle.refused" {
		t.Errorf("expected name 'formz.behavior.cycle.refused', got %q", BehaviorCycleRefused.Name())
	}
}

func TestResourceLoadFailed(t *testing.T) {
	if ResourceLoadFailed.Name() != "formz.resource.load.failed" {
		t.Errorf("expected name 'formz.resource.load.failed', got %q", ResourceLoadFailed.Name())
	}
}
