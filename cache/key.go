// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Key derives a cache key from document bytes and a salt describing the
// options the result depends on.
func Key(data []byte, salt string) string {
	d := xxhash.New()
	_, _ = d.Write(data)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(salt)
	return strconv.FormatUint(d.Sum64(), 16) + "-" + strconv.Itoa(len(data))
}
