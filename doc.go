/*
Package formz provides a reactive form-state engine: a tree of fields,
groups, and arrays with layered validation, declarative behaviors, and
per-node status aggregation.

formz is designed to be embedded within services that own complex form
documents, not bound to any UI framework. The engine holds the state; a
consumer subscribes to node cells and renders however it likes.

# Basic Usage

Build a form from a schema descriptor:

	form, err := formz.New(formz.GroupSpec{
	    "email": &formz.FieldSpec{
	        Value:      "",
	        Validators: []formz.SyncValidator{formz.Required(), formz.Tag("email")},
	    },
	    "items": &formz.ArraySpec{
	        Of: formz.GroupSpec{
	            "name": formz.F(""),
	            "qty":  formz.F(1),
	        },
	    },
	})

Navigate and mutate through paths:

	email, _ := form.FieldAt("email")
	email.SetValue("a@b.co")

	items, _ := form.ArrayAt("items")
	items.Push(map[string]any{"name": "widget", "qty": 2})
	form.Get("items[0].qty")

# Validation

Three validator layers share one error model:

	form.AddValidator("items[*].qty", formz.Min(1))

	form.AddAsyncValidator("email", checkEmailFree,
	    formz.WithDebounce(300*time.Millisecond))

	form.AddTreeValidator(func(doc map[string]any) map[string][]formz.ValidationError {
	    // cross-field invariants, findings keyed by path
	    return nil
	}, "start", "end")

Synchronous validators run first; asynchronous checks only run when they
pass, are debounced, and a superseded check never overwrites a newer
value's outcome. Wrap the async layer with middleware at construction:

	formz.New(schema,
	    formz.WithAsyncTimeout(5*time.Second),
	    formz.WithAsyncRetry(3),
	)

# Behaviors

Declarative rules re-run whenever their dependencies change:

	form.ComputeFrom([]string{"price", "qty"}, "total", func(v []any) any {
	    return v[0].(float64) * v[1].(float64)
	})

	form.ShowWhen("propertyValue", []string{"loanType"}, func(v []any) bool {
	    return v[0] == "mortgage"
	})

	form.ResetWhen("model", "brand")
	form.RevalidateWhen("confirm", "password")

# Deterministic Testing

Forms run asynchronous checks on goroutines by default. For tests, queue
them instead and drain explicitly:

	form, _ := formz.New(schema, formz.WithSyncMode())
	field.SetValue("x")
	form.Flush(ctx)

Debounce windows use clockz; inject a fake clock to step time by hand.

The package is built on top of:
  - pipz: composable middleware around asynchronous validators
  - capitan: engine lifecycle and validation signals
  - clockz: injectable time for debounce windows
*/
package formz
