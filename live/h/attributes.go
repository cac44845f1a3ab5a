package h

import gh "maragu.dev/gomponents/html"

// ID creates an id attribute. Datastar morphs patches by element id.
func ID(v string) H { return gh.ID(v) }

// Class creates a class attribute.
func Class(v string) H { return gh.Class(v) }

// Type creates a type attribute.
func Type(v string) H { return gh.Type(v) }

// Name creates a name attribute.
func Name(v string) H { return gh.Name(v) }

// Value creates a value attribute.
func Value(v string) H { return gh.Value(v) }

// Placeholder creates a placeholder attribute.
func Placeholder(v string) H { return gh.Placeholder(v) }

// Src creates a src attribute.
func Src(v string) H { return gh.Src(v) }

// For creates a for attribute tying a <label> to the input with that id.
func For(v string) H { return gh.For(v) }

// Data creates a data-* attribute. Datastar reads its directives from these,
// so h.Data("on:click", expr) renders data-on:click="expr".
func Data(name, v string) H { return gh.Data(name, v) }
