package meta

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
)

// ErrBadImport is returned when a reference cannot be imported into a module.
var ErrBadImport = errors.New("reference cannot be imported")

// importTable owns the module's view of external references. Each logical
// reference is imported at most once; later imports return the same handle.
type importTable struct {
	handles []*TypeRef
	index   map[string]uint32
	owned   map[*TypeRef]uint32
	members map[string]Ref
}

func newImportTable() *importTable {
	return &importTable{
		handles: make([]*TypeRef, 0, 16),
		index:   make(map[string]uint32, 16),
		owned:   make(map[*TypeRef]uint32, 16),
		members: make(map[string]Ref),
	}
}

// Import brings ref into m and returns the in-module handle. The handle is
// a copy; ref is never attached to m directly.
func (m *Module) Import(ref *TypeRef) (*TypeRef, error) {
	key, err := importKey(ref, 0)
	if err != nil {
		return nil, err
	}
	tbl := m.table()
	if id, ok := tbl.index[key]; ok {
		return tbl.handles[id], nil
	}

	out := &TypeRef{
		Kind:      ref.Kind,
		Scope:     ref.Scope,
		Namespace: ref.Namespace,
		Name:      ref.Name,
	}
	switch ref.Kind {
	case RefGenericInst:
		out.Args = make([]*TypeRef, len(ref.Args))
		for i, a := range ref.Args {
			imported, err := m.importSlot(a)
			if err != nil {
				return nil, err
			}
			out.Args[i] = imported
		}
	case RefArray, RefByRef:
		elem, err := m.importSlot(ref.Elem)
		if err != nil {
			return nil, err
		}
		out.Elem = elem
	}

	id, err := safecast.Conv[uint32](len(tbl.handles))
	if err != nil {
		panic(fmt.Errorf("import table overflow: %w", err))
	}
	tbl.handles = append(tbl.handles, out)
	tbl.index[key] = id
	tbl.owned[out] = id
	m.addScope(ref.Scope)
	return out, nil
}

// importSlot imports a nested or member slot. Placeholders stay bound to
// their owner and are shared rather than copied.
func (m *Module) importSlot(ref *TypeRef) (*TypeRef, error) {
	if ref != nil && ref.Kind == RefGenericParam {
		if _, err := paramKey(ref); err != nil {
			return nil, err
		}
		return ref, nil
	}
	return m.Import(ref)
}

// ImportField imports the declaring type and field type of f and returns a
// field reference owned by m.
func (m *Module) ImportField(f *FieldRef) (*FieldRef, error) {
	if f == nil || f.Name == "" {
		return nil, fmt.Errorf("%w: empty field reference", ErrBadImport)
	}
	declKey, err := importKey(f.DeclaringType, 0)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	typeKey, err := slotKey(f.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	key := "F|" + declKey + "::" + f.Name + ":" + typeKey
	tbl := m.table()
	if prev, ok := tbl.members[key]; ok {
		return prev.(*FieldRef), nil
	}
	decl, err := m.Import(f.DeclaringType)
	if err != nil {
		return nil, err
	}
	typ, err := m.importSlot(f.Type)
	if err != nil {
		return nil, err
	}
	out := &FieldRef{DeclaringType: decl, Name: f.Name, Type: typ}
	tbl.members[key] = out
	return out, nil
}

// ImportMethod imports every type slot of mr and returns a method reference
// owned by m.
func (m *Module) ImportMethod(mr *MethodRef) (*MethodRef, error) {
	if mr == nil || mr.Name == "" {
		return nil, fmt.Errorf("%w: empty method reference", ErrBadImport)
	}
	var sb strings.Builder
	sb.WriteString("M|")
	slots := make([]*TypeRef, 0, 2+len(mr.Params)+len(mr.GenericArgs))
	slots = append(slots, mr.DeclaringType, mr.Return)
	slots = append(slots, mr.Params...)
	slots = append(slots, mr.GenericArgs...)
	for i, s := range slots {
		var k string
		var err error
		if i == 0 {
			k, err = importKey(s, 0)
		} else {
			k, err = slotKey(s)
		}
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", mr.Name, err)
		}
		if i == 1 {
			sb.WriteString("::" + mr.Name + "/")
		}
		sb.WriteString(k)
		sb.WriteByte(';')
	}
	if mr.HasThis {
		sb.WriteString("this")
	}
	key := sb.String()
	tbl := m.table()
	if prev, ok := tbl.members[key]; ok {
		return prev.(*MethodRef), nil
	}

	imported := make([]*TypeRef, len(slots))
	for i, s := range slots {
		imp := m.importSlot
		if i == 0 {
			imp = m.Import
		}
		h, err := imp(s)
		if err != nil {
			return nil, err
		}
		imported[i] = h
	}
	nParams := len(mr.Params)
	out := &MethodRef{
		DeclaringType: imported[0],
		Name:          mr.Name,
		HasThis:       mr.HasThis,
		Return:        imported[1],
		Params:        slices.Clone(imported[2 : 2+nParams]),
		GenericArgs:   slices.Clone(imported[2+nParams:]),
	}
	tbl.members[key] = out
	return out, nil
}

// IsImported reports whether ref is a handle returned by Import. Handles
// are shared between sites and must not be mutated in place.
func (m *Module) IsImported(ref *TypeRef) bool {
	if m.imports == nil || ref == nil {
		return false
	}
	_, ok := m.imports.owned[ref]
	return ok
}

// ImportCount returns the number of distinct imported type references.
func (m *Module) ImportCount() int {
	if m.imports == nil {
		return 0
	}
	return len(m.imports.handles)
}

// importKey builds the normalized content key of ref and rejects shapes
// that cannot live in another module.
func importKey(ref *TypeRef, depth int) (string, error) {
	if ref == nil {
		return "", fmt.Errorf("%w: nil type reference", ErrBadImport)
	}
	if depth > maxNameDepth {
		return "", fmt.Errorf("%w: reference nesting too deep", ErrBadImport)
	}
	switch ref.Kind {
	case RefNamed:
		if ref.Name == "" {
			return "", fmt.Errorf("%w: unnamed type reference", ErrBadImport)
		}
		return norm.NFC.String(ref.Scope + "|" + ref.DefinitionName()), nil
	case RefGenericInst:
		if ref.Name == "" || len(ref.Args) == 0 {
			return "", fmt.Errorf("%w: malformed generic instantiation %s", ErrBadImport, ref.DefinitionName())
		}
		var sb strings.Builder
		sb.WriteString(norm.NFC.String(ref.Scope + "|" + ref.DefinitionName()))
		sb.WriteByte('<')
		for i, a := range ref.Args {
			if i > 0 {
				sb.WriteByte(';')
			}
			k, err := nestedKey(a, depth+1)
			if err != nil {
				return "", err
			}
			sb.WriteString(k)
		}
		sb.WriteByte('>')
		return sb.String(), nil
	case RefArray:
		k, err := nestedKey(ref.Elem, depth+1)
		if err != nil {
			return "", err
		}
		return k + "[]", nil
	case RefByRef:
		k, err := nestedKey(ref.Elem, depth+1)
		if err != nil {
			return "", err
		}
		return k + "&", nil
	case RefGenericParam:
		return "", fmt.Errorf("%w: generic parameter %s cannot be imported on its own", ErrBadImport, ref.Name)
	default:
		return "", fmt.Errorf("%w: invalid reference kind %s", ErrBadImport, ref.Kind)
	}
}

func nestedKey(ref *TypeRef, depth int) (string, error) {
	if ref != nil && ref.Kind == RefGenericParam {
		return paramKey(ref)
	}
	return importKey(ref, depth)
}

func slotKey(ref *TypeRef) (string, error) {
	return nestedKey(ref, 0)
}

// paramKey identifies a placeholder by its owner and position.
func paramKey(ref *TypeRef) (string, error) {
	if ref.Param == nil || ref.Param.Owner == "" {
		return "", fmt.Errorf("%w: unbound generic parameter %s", ErrBadImport, ref.Name)
	}
	return "!" + ref.Param.Owner + "#" + strconv.Itoa(ref.Param.Position), nil
}
