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

package focuser

import "github.com/pkg/errors"

var (
	// ErrMissingNode means a mark visitor hit a key with no node entry.
	// The caller supplied an active-directory key that is not in the
	// graph, which we treat as a misconfiguration rather than skipping
	// it silently.
	ErrMissingNode = errors.New("node entry not found")

	// ErrNotDone means a visited node is neither done nor re-checking
	// its dependencies.
	ErrNotDone = errors.New("node entry not done")
)
