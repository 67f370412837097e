package handlers

import (
	"github.com/localbridge/localbridged/pkg/jsonrpc"
)

// ContactsNamespace is a reference in-process namespace: a minimal
// contacts directory lookup that needs no credential and no proxy,
// illustrating the "internal" implementation kind (spec.md §4.2).
type ContactsNamespace struct {
	Directory map[string]ContactRecord
}

// ContactRecord is one entry in the directory.
type ContactRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (n ContactsNamespace) Handle(ctx Context, operation string, params jsonrpc.Params, requestID []byte) Response {
	switch operation {
	case "lookup":
		return n.lookup(params)
	case "list":
		return n.list()
	default:
		return MethodNotFound("contacts.%s is not a known operation", operation)
	}
}

func (n ContactsNamespace) lookup(params jsonrpc.Params) Response {
	name, err := params.String("name")
	if err != nil {
		return InvalidParams("%v", err)
	}
	rec, ok := n.Directory[name]
	if !ok {
		return OK(nil)
	}
	return OK(rec)
}

func (n ContactsNamespace) list() Response {
	out := make([]ContactRecord, 0, len(n.Directory))
	for _, rec := range n.Directory {
		out = append(out, rec)
	}
	return OK(out)
}
