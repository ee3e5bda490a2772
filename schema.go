package formz

import "fmt"

// FieldSpec describes a terminal field: its initial value plus optional
// validators and loader. The descriptor is language-data: everything except
// the function references survives a round trip through a Codec.
type FieldSpec struct {
	// Value is the field's initial value.
	Value any `json:"value" yaml:"value"`

	// Disabled excludes the field from aggregation and validation from the
	// start.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// DebounceMillis is the default debounce window for this field's
	// asynchronous validators, in milliseconds. Zero means immediate.
	DebounceMillis int `json:"debounce,omitempty" yaml:"debounce,omitempty"`

	// Validators are synchronous validators attached at construction.
	Validators []SyncValidator `json:"-" yaml:"-"`

	// AsyncValidators are asynchronous validators attached at construction.
	AsyncValidators []AsyncValidator `json:"-" yaml:"-"`

	// Resource is an optional option-data loader for UI bindings.
	Resource Resource `json:"-" yaml:"-"`
}

// F is shorthand for a field descriptor with an initial value.
func F(value any) *FieldSpec {
	return &FieldSpec{Value: value}
}

// GroupSpec describes an object-shaped node: a mapping from key to child
// descriptor. Child descriptors may be *FieldSpec, GroupSpec or *ArraySpec.
type GroupSpec map[string]any

// ArraySpec describes a dynamic list. Of is the item schema every element
// conforms to; Values seeds the initial items.
type ArraySpec struct {
	Of     any
	Values []any
}

// buildNode constructs a node subtree from a descriptor.
func buildNode(f *Form, spec any) (Node, error) {
	switch t := spec.(type) {
	case *FieldSpec:
		return newField(f, t), nil

	case GroupSpec:
		return buildGroup(f, t)

	case map[string]any:
		return buildGroup(f, GroupSpec(t))

	case *ArraySpec:
		if t.Of == nil {
			return nil, configErr("build schema", "", "array descriptor missing item schema")
		}
		// Validate the template eagerly so later Push cannot fail.
		probe := &Form{sched: newScheduler()}
		if _, err := buildNode(probe, t.Of); err != nil {
			return nil, err
		}
		a := newArray(f, t.Of)
		// Seeds double as the reset baseline, so Reset restores them.
		a.base().initial = append([]any(nil), t.Values...)
		for i, v := range t.Values {
			item, err := buildNode(f, t.Of)
			if err != nil {
				return nil, err
			}
			b := item.base()
			b.parent = a
			b.index = i
			a.items = append(a.items, item)
			if v != nil {
				setNodeValue(item, v, setOpts{emitEvent: false})
			}
		}
		return a, nil

	case nil:
		return nil, configErr("build schema", "", "nil descriptor")

	default:
		// A bare value is shorthand for a field with that initial value.
		return newField(f, &FieldSpec{Value: spec}), nil
	}
}

func buildGroup(f *Form, spec GroupSpec) (*Group, error) {
	g := newGroup(f)
	for _, key := range sortedKeys(spec) {
		if key == "" {
			return nil, configErr("build schema", "", "empty group key")
		}
		child, err := buildNode(f, spec[key])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		g.addChild(key, child)
	}
	return g, nil
}

func sortedKeys(m GroupSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// registerSpecValidators walks the built tree and attaches the validators
// declared inline on field descriptors.
func registerSpecValidators(f *Form, spec any, path string) error {
	switch t := spec.(type) {
	case *FieldSpec:
		for _, v := range t.Validators {
			if err := f.addValidatorLocked(path, v, nil); err != nil {
				return err
			}
		}
		for _, av := range t.AsyncValidators {
			reg := []ValidatorOption(nil)
			if t.DebounceMillis > 0 {
				reg = append(reg, WithDebounce(millis(t.DebounceMillis)))
			}
			if err := f.addAsyncValidatorLocked(path, av, reg); err != nil {
				return err
			}
		}
		return nil

	case GroupSpec:
		return registerGroupSpecValidators(f, t, path)

	case map[string]any:
		return registerGroupSpecValidators(f, GroupSpec(t), path)

	case *ArraySpec:
		// Wildcard registration covers seeded and future items alike.
		return registerSpecValidators(f, t.Of, path+"[*]")

	default:
		return nil
	}
}

func registerGroupSpecValidators(f *Form, spec GroupSpec, path string) error {
	for _, key := range sortedKeys(spec) {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		if err := registerSpecValidators(f, spec[key], childPath); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchema decodes a serialized schema document into a GroupSpec. The
// document maps keys to either a field object (any mapping containing a
// "value" key), a nested mapping (group), or a list whose single element is
// the item schema (array). Validators and behaviors are code, not data, and
// are attached after construction via the Form registration APIs.
func LoadSchema(codec Codec, data []byte) (GroupSpec, error) {
	var raw map[string]any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	spec, err := convertSchemaValue(raw)
	if err != nil {
		return nil, err
	}
	g, ok := spec.(GroupSpec)
	if !ok {
		return nil, configErr("load schema", "", "top-level document must be a mapping")
	}
	return g, nil
}

func convertSchemaValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if raw, ok := t["value"]; ok {
			fs := &FieldSpec{Value: raw}
			if d, ok := t["disabled"].(bool); ok {
				fs.Disabled = d
			}
			switch d := t["debounce"].(type) {
			case int:
				fs.DebounceMillis = d
			case float64:
				fs.DebounceMillis = int(d)
			}
			return fs, nil
		}
		g := make(GroupSpec, len(t))
		for k, child := range t {
			converted, err := convertSchemaValue(child)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			g[k] = converted
		}
		return g, nil

	case []any:
		if len(t) != 1 {
			return nil, configErr("load schema", "", "array descriptor must hold exactly one item schema, got %d", len(t))
		}
		of, err := convertSchemaValue(t[0])
		if err != nil {
			return nil, err
		}
		return &ArraySpec{Of: of}, nil

	default:
		return nil, configErr("load schema", "", "unsupported descriptor value %T", v)
	}
}
