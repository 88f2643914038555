package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Actions.
const (
	ActionAll    = "all"
	ActionAdd    = "add"
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionImport = "import"
	ActionExport = "export"
)

// ModuleAll grants its actions on every module.
const ModuleAll = "all"

// Back-office modules.
const (
	ModuleTeam          = "team"
	ModuleRole          = "role"
	ModuleCustomerGroup = "customer_group"
	ModuleCompany       = "company"
	ModuleLocation      = "location"
	ModuleSubLocation   = "sub_location"
	ModuleProject       = "project"
	ModuleTask          = "task"
	ModuleSettings      = "settings"
	ModuleReport        = "report"
)

var (
	allModules = []string{
		ModuleTeam, ModuleRole, ModuleCustomerGroup, ModuleCompany, ModuleLocation,
		ModuleSubLocation, ModuleProject, ModuleTask, ModuleSettings, ModuleReport,
	}
	allActions = []string{ActionAdd, ActionDelete, ActionEdit, ActionExport, ActionImport, ActionView}

	legacyModules = []string{
		ModuleCustomerGroup, ModuleCompany, ModuleLocation, ModuleSubLocation, ModuleProject, ModuleTask,
	}
	legacyActions = []string{ActionAdd, ActionDelete, ActionEdit, ActionView}
)

// maxDocumentNesting is how many layers of JSON string encoding are peeled.
const maxDocumentNesting = 1

// Permissions is the resolved, request-scoped capability map of a principal.
type Permissions struct {
	Modules    map[string][]string `json:"modules"`
	SuperAdmin bool                `json:"isSuperAdmin"`
}

// FullAccess returns the constant full-access map granted to administrators.
func FullAccess() Permissions {
	modules := make(map[string][]string, len(allModules)+1)
	for _, m := range allModules {
		modules[m] = slices.Clone(allActions)
	}
	modules[ModuleAll] = []string{ActionAll}
	return Permissions{Modules: modules, SuperAdmin: true}
}

// AdminPermissionDocument is the document always stored on the administrative
// custom role.
func AdminPermissionDocument() json.RawMessage {
	data, _ := json.Marshal(FullAccess().Modules)
	return data
}

// ResolvePermissions derives the capability map for a member:
// administrators get FullAccess regardless of any stored document; otherwise a
// stored custom role document is used as parsed, even when it is malformed or
// grants nothing; otherwise legacy roles get CRUD on the legacy modules and
// everyone else gets nothing.
func ResolvePermissions(m *Member) Permissions {
	if m == nil {
		return Permissions{Modules: map[string][]string{}}
	}
	if IsAdminRole(m.Role) {
		return FullAccess()
	}
	if m.CustomRole != nil && hasDocument(m.CustomRole.Permissions) {
		return Permissions{Modules: ParsePermissionDocument(m.CustomRole.Permissions)}
	}
	if isLegacyRole(m.Role) {
		modules := make(map[string][]string, len(legacyModules))
		for _, mod := range legacyModules {
			modules[mod] = slices.Clone(legacyActions)
		}
		return Permissions{Modules: modules}
	}
	return Permissions{Modules: map[string][]string{}}
}

// Allows reports whether the permissions satisfy a "module:action" requirement.
// view is implied by holding any action on the module; no other pair is implied.
func (p Permissions) Allows(required string) bool {
	module, action, ok := ParseRequirement(required)
	if !ok {
		return false
	}
	if p.SuperAdmin {
		return true
	}
	actions := p.Modules[module]
	if slices.Contains(actions, ActionAll) || slices.Contains(actions, action) {
		return true
	}
	if global := p.Modules[ModuleAll]; slices.Contains(global, ActionAll) || slices.Contains(global, action) {
		return true
	}
	return action == ActionView && len(actions) > 0
}

// ParseRequirement splits "module:action". Both halves must be non-empty.
func ParseRequirement(s string) (module, action string, ok bool) {
	module, action, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || module == "" || action == "" {
		return "", "", false
	}
	return module, action, true
}

// ParsePermissionDocument converts a stored permission document into a module
// map. It accepts a decoded map, raw JSON bytes, or a JSON string (also a JSON
// string holding encoded JSON). Anything unparseable yields an empty map.
func ParsePermissionDocument(v any) map[string][]string {
	doc, ok := parseDocument(v, 0)
	if !ok {
		return map[string][]string{}
	}
	return doc
}

func parseDocument(v any, depth int) (map[string][]string, bool) {
	switch t := v.(type) {
	case nil:
		return map[string][]string{}, true
	case map[string][]string:
		return canonicalize(t), true
	case map[string]any:
		out := make(map[string][]string, len(t))
		for module, raw := range t {
			list, ok := raw.([]any)
			if !ok {
				if strs, isStrs := raw.([]string); isStrs {
					out[module] = strs
					continue
				}
				return nil, false
			}
			actions := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				actions = append(actions, s)
			}
			out[module] = actions
		}
		return canonicalize(out), true
	case json.RawMessage:
		return parseJSONDocument([]byte(t), depth)
	case []byte:
		return parseJSONDocument(t, depth)
	case string:
		return parseJSONDocument([]byte(t), depth)
	default:
		return nil, false
	}
}

func parseJSONDocument(data []byte, depth int) (map[string][]string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return map[string][]string{}, true
	}
	if data[0] == '"' {
		if depth >= maxDocumentNesting {
			return nil, false
		}
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, false
		}
		return parseJSONDocument([]byte(inner), depth+1)
	}
	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return canonicalize(doc), true
}

// canonicalize trims, de-duplicates and sorts actions and drops empty modules.
func canonicalize(doc map[string][]string) map[string][]string {
	out := make(map[string][]string, len(doc))
	for module, actions := range doc {
		module = strings.TrimSpace(module)
		if module == "" {
			continue
		}
		set := make([]string, 0, len(actions))
		for _, a := range actions {
			a = strings.TrimSpace(a)
			if a == "" || slices.Contains(set, a) {
				continue
			}
			set = append(set, a)
		}
		if len(set) == 0 {
			continue
		}
		sort.Strings(set)
		out[module] = set
	}
	return out
}

// hasDocument reports whether a custom role stores a document at all. Blank,
// null and {} are the encodings of "no document".
func hasDocument(raw json.RawMessage) bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return len(bytes.TrimSpace(raw)) > 0
	}
	switch buf.String() {
	case "", "null", "{}":
		return false
	}
	return true
}

// ValidatePermissionDocument checks a document submitted for a custom role and
// returns its canonical JSON encoding.
func ValidatePermissionDocument(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var doc map[string][]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: permissions must map module names to action lists", ErrInvalidInput)
	}
	for module := range doc {
		if strings.Contains(module, ":") {
			return nil, fmt.Errorf("%w: module name %q must not contain ':'", ErrInvalidInput, module)
		}
	}
	data, err := json.Marshal(canonicalize(doc))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List flattens the map into sorted "module:action" strings.
func (p Permissions) List() []string {
	out := make([]string, 0)
	for module, actions := range p.Modules {
		for _, a := range actions {
			out = append(out, module+":"+a)
		}
	}
	sort.Strings(out)
	return out
}
