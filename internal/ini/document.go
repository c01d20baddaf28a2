package ini

// Properties is an insertion-ordered set of key/value pairs.
// A nil value means the key was declared without a value.
type Properties struct {
	keys   []string
	values map[string]*string
}

func NewProperties() *Properties {
	return &Properties{values: make(map[string]*string)}
}

func (p *Properties) Set(key string, value *string) {
	if p.values == nil {
		p.values = make(map[string]*string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Properties) SetString(key, value string) {
	p.Set(key, &value)
}

// SetList stores values joined with a single space.
func (p *Properties) SetList(key string, values []string) {
	p.SetString(key, joinList(values))
}

// Lookup returns the stored value and whether the key was declared at all.
func (p *Properties) Lookup(key string) (*string, bool) {
	value, ok := p.values[key]
	return value, ok
}

// Get returns the value for key, or "" when the key is absent or empty.
func (p *Properties) Get(key string) string {
	if value := p.values[key]; value != nil {
		return *value
	}
	return ""
}

func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p *Properties) Len() int {
	return len(p.keys)
}

// Document is the parsed form of a configuration text: one ordered mapping
// whose entries are either plain properties or named sections.
type Document struct {
	keys     []string
	values   map[string]*string
	sections map[string]*Properties
}

func NewDocument() *Document {
	return &Document{
		values:   make(map[string]*string),
		sections: make(map[string]*Properties),
	}
}

// Set stores a top-level property, replacing a section of the same name
// in place.
func (d *Document) Set(key string, value *string) {
	d.init()
	if !d.has(key) {
		d.keys = append(d.keys, key)
	}
	delete(d.sections, key)
	d.values[key] = value
}

func (d *Document) SetString(key, value string) {
	d.Set(key, &value)
}

func (d *Document) SetList(key string, values []string) {
	d.SetString(key, joinList(values))
}

// SetSection stores a section, replacing a property of the same name in place.
func (d *Document) SetSection(name string, section *Properties) {
	d.init()
	if !d.has(name) {
		d.keys = append(d.keys, name)
	}
	delete(d.values, name)
	if section == nil {
		section = NewProperties()
	}
	d.sections[name] = section
}

// Lookup returns a top-level property. Sections are not properties.
func (d *Document) Lookup(key string) (*string, bool) {
	value, ok := d.values[key]
	return value, ok
}

func (d *Document) Get(key string) string {
	if value := d.values[key]; value != nil {
		return *value
	}
	return ""
}

// Section returns the named section or nil.
func (d *Document) Section(name string) *Properties {
	return d.sections[name]
}

func (d *Document) IsSection(key string) bool {
	_, ok := d.sections[key]
	return ok
}

// Keys returns every entry name, properties and sections, in insertion order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Sections returns section names in insertion order.
func (d *Document) Sections() []string {
	names := make([]string, 0, len(d.sections))
	for _, key := range d.keys {
		if _, ok := d.sections[key]; ok {
			names = append(names, key)
		}
	}
	return names
}

// Properties returns top-level property names in insertion order.
func (d *Document) Properties() []string {
	names := make([]string, 0, len(d.values))
	for _, key := range d.keys {
		if _, ok := d.values[key]; ok {
			names = append(names, key)
		}
	}
	return names
}

func (d *Document) Len() int {
	return len(d.keys)
}

func (d *Document) init() {
	if d.values == nil {
		d.values = make(map[string]*string)
	}
	if d.sections == nil {
		d.sections = make(map[string]*Properties)
	}
}

func (d *Document) has(key string) bool {
	if _, ok := d.values[key]; ok {
		return true
	}
	_, ok := d.sections[key]
	return ok
}
