//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package errorcompounder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrorCompounder collects errors from independent steps and renders
// them as a single error. It is safe for concurrent use.
type ErrorCompounder struct {
	sync.Mutex
	errs []error
}

func New() *ErrorCompounder {
	return &ErrorCompounder{}
}

func (ec *ErrorCompounder) Add(err error) {
	if err == nil {
		return
	}

	ec.Lock()
	defer ec.Unlock()
	ec.errs = append(ec.errs, err)
}

func (ec *ErrorCompounder) Addf(format string, a ...any) {
	ec.Add(fmt.Errorf(format, a...))
}

func (ec *ErrorCompounder) AddWrapf(err error, format string, a ...any) {
	if err == nil {
		return
	}
	ec.Add(errors.Wrapf(err, format, a...))
}

func (ec *ErrorCompounder) Len() int {
	ec.Lock()
	defer ec.Unlock()
	return len(ec.errs)
}

func (ec *ErrorCompounder) Empty() bool {
	return ec.Len() == 0
}

func (ec *ErrorCompounder) First() error {
	ec.Lock()
	defer ec.Unlock()
	if len(ec.errs) == 0 {
		return nil
	}
	return ec.errs[0]
}

// ToError combines all collected errors into one. The first error is
// preserved as the unwrap target so sentinel checks keep working.
func (ec *ErrorCompounder) ToError() error {
	ec.Lock()
	defer ec.Unlock()

	switch len(ec.errs) {
	case 0:
		return nil
	case 1:
		return ec.errs[0]
	default:
		var sb strings.Builder
		for i, err := range ec.errs[1:] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(err.Error())
		}
		return errors.Wrapf(ec.errs[0], "and %d more: %s", len(ec.errs)-1, sb.String())
	}
}
