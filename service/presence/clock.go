package presence

import "time"

// Clock supplies the registry's notion of now. time.Time values from
// time.Now carry a monotonic reading, so TTL math via Sub is immune to
// wall-clock steps. Injectable for tests; nil means time.Now.
type Clock func() time.Time
