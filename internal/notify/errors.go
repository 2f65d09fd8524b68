package notify

import "errors"

var ErrNoSink = errors.New("no notification sink configured")
