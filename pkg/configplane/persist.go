package configplane

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ini/ini"
)

// Persister implements spec section 4.H step 5's crash-safe persistence:
// serialize to <persistdir>/<name>.cnf.tmp, rename(2) over <name>.cnf;
// destroy unlink(2)s it. Grounded on bitpoke-mysql-operator's
// appconf.go, which builds the same kind of section/key .cnf file with
// go-ini/ini (ini.Empty, Section, NewKey, SaveTo) rather than a
// hand-rolled INI writer.
type Persister struct {
	Dir string
}

func NewPersister(dir string) *Persister {
	return &Persister{Dir: dir}
}

func (p *Persister) path(objType ObjectType, name string) string {
	return filepath.Join(p.Dir, name+".cnf")
}

// Save writes obj's current configuration to its .cnf file, using the
// INI shape spec section 6 names: "[name]" with "type=..." plus
// module-specific keys.
func (p *Persister) Save(obj *Object) error {
	cfg := ini.Empty()
	sec, err := cfg.NewSection(obj.Name)
	if err != nil {
		return err
	}
	if _, err := sec.NewKey("type", singularType(obj.Type)); err != nil {
		return err
	}
	if obj.Attributes.Router != "" {
		if _, err := sec.NewKey("router", obj.Attributes.Router); err != nil {
			return err
		}
	}
	if obj.Attributes.Module != "" {
		if _, err := sec.NewKey("module", obj.Attributes.Module); err != nil {
			return err
		}
	}
	if obj.Attributes.Protocol != "" {
		if _, err := sec.NewKey("protocol", obj.Attributes.Protocol); err != nil {
			return err
		}
	}
	for k, v := range obj.Attributes.Parameters {
		if _, err := sec.NewKey(k, fmt.Sprintf("%v", v)); err != nil {
			return err
		}
	}
	for relName, rel := range obj.Relationships {
		if len(rel.Data) == 0 {
			continue
		}
		joined := ""
		for i, ref := range rel.Data {
			if i > 0 {
				joined += ","
			}
			joined += ref.ID
		}
		if _, err := sec.NewKey(relName, joined); err != nil {
			return err
		}
	}

	final := p.path(obj.Type, obj.Name)
	tmp := final + ".tmp"
	if err := cfg.SaveTo(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Unlink removes a destroyed object's persisted file.
func (p *Persister) Unlink(objType ObjectType, name string) error {
	err := os.Remove(p.path(objType, name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads every <persistdir>/*.cnf file back into Documents, for
// start-of-day bootstrap before the registry applies each one through
// the normal Create path.
func Load(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var docs []*Document
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".cnf" {
			continue
		}
		cfg, err := ini.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, sec := range cfg.Sections() {
			if sec.Name() == ini.DefaultSection {
				continue
			}
			doc := sectionToDocument(sec)
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func sectionToDocument(sec *ini.Section) *Document {
	attrs := Attributes{Parameters: make(map[string]interface{})}
	objType := pluralType(sec.Key("type").String())
	for _, k := range sec.Keys() {
		switch k.Name() {
		case "type":
			continue
		case "router":
			attrs.Router = k.String()
		case "module":
			attrs.Module = k.String()
		case "protocol":
			attrs.Protocol = k.String()
		default:
			attrs.Parameters[k.Name()] = k.String()
		}
	}
	return &Document{Data: &Resource{ID: sec.Name(), Type: string(objType), Attributes: attrs}}
}

func singularType(t ObjectType) string {
	switch t {
	case TypeServer:
		return "server"
	case TypeService:
		return "service"
	case TypeListener:
		return "listener"
	case TypeMonitor:
		return "monitor"
	case TypeFilter:
		return "filter"
	case TypeUser:
		return "user"
	default:
		return string(t)
	}
}

func pluralType(s string) ObjectType {
	switch s {
	case "server":
		return TypeServer
	case "service":
		return TypeService
	case "listener":
		return TypeListener
	case "monitor":
		return TypeMonitor
	case "filter":
		return TypeFilter
	case "user":
		return TypeUser
	default:
		return ObjectType(s)
	}
}
