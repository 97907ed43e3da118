// Package stream turns a live line-oriented event stream into typed events.
//
// Two wire formats are understood and may arrive on the same source:
//
//	event: update            {"event":"delete","payload":"42"}
//	data: {"id":"1",...}
//
// The SSE-style lines on the left are grouped by the Assembler until the
// accumulated frame decodes; a blank or comment line ends a frame that did
// not. A single line holding a JSON object with an "event" field is a frame
// of its own.
//
// A Reader composes a LineSource, the Assembler and Decode:
//
//	reader, err := stream.NewReader(source, stream.ReaderConfig{})
//	if err != nil {
//		return err
//	}
//	defer reader.Close()
//
//	for reader.Next() {
//		switch ev := reader.Value().(type) {
//		case stream.UpdateEvent:
//			fmt.Println(ev.Status.Content)
//		case stream.DeleteEvent:
//			fmt.Println("deleted", ev.StatusID)
//		}
//	}
//
// With the zero ReaderConfig a frame that fails to decode stops Next with a
// *FrameError; calling Next again continues with the following frame. Set
// MaxConsecutiveFailures to skip bad frames up to a bound instead.
//
// The Assembler imposes no limit on the size of a frame that never decodes.
// Sources should be wrapped with a transport that bounds message size where
// that matters.
package stream
