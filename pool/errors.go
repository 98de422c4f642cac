package pool

import "errors"

// errClosing is returned by Submit once Close has been called.
var errClosing = errors.New("pool: closing, no new tasks accepted")
