package main

// word is one dictionary entry: either a host primitive or a colon
// definition naming a quotation, linked to the previously registered word.
type word struct {
	name string
	prim func(vm *VM)
	code quoteID
	prev *word
}

// dict is the word list, newest first. Redefinition pushes a new head and
// shadows older entries; lookup returns the first match.
type dict struct {
	head *word
}

func (d *dict) lookup(name string) *word {
	for w := d.head; w != nil; w = w.prev {
		if w.name == name {
			return w
		}
	}
	return nil
}

func (d *dict) definePrim(name string, fn func(vm *VM)) {
	d.head = &word{name: name, prim: fn, prev: d.head}
}

func (d *dict) defineColon(name string, code quoteID) {
	d.head = &word{name: name, code: code, prev: d.head}
}
