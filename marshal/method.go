package marshal

import (
	"fmt"
	"net/http"

	"github.com/reglet-dev/glass/domain/errors"
)

// Method is the HTTP method enum of deislabs_http_v01.
type Method uint8

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
)

var methodNames = [...]string{
	MethodGet:    http.MethodGet,
	MethodPost:   http.MethodPost,
	MethodPut:    http.MethodPut,
	MethodDelete: http.MethodDelete,
	MethodPatch:  http.MethodPatch,
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// ParseMethod maps an HTTP method name to the enum. Names are case-sensitive.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil //nolint:gosec // G115: index of a five-element table
		}
	}
	return 0, fmt.Errorf("unsupported HTTP method %q", name)
}

// LiftMethod decodes a method discriminant.
func LiftMethod(v uint32) (Method, error) {
	if v >= uint32(len(methodNames)) {
		return 0, errors.NewBoundaryError(errors.KindInvalidVariant, "method discriminant %d", v)
	}
	return Method(v), nil
}
