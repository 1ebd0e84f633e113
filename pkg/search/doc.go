// Package search drives the full-archive search API: it builds request
// bodies, pages through results and hands every page to a sink.
//
// A Client is one session. It owns the transport, the sink and a throttle
// shared by every rule it runs, so consecutive requests are spaced at least
// one second apart even across rules. Each call to GetData or GetCounts
// starts a fresh run whose cursor moves from not-started, through
// continuing with the server's token, to done.
//
// Usage:
//
//	tr := transport.New(transport.Options{Username: user, Password: pass})
//	sink, err := search.NewFileSink("./search_out", true)
//	if err != nil {
//	    return err
//	}
//
//	client, err := search.NewClient(tr, search.Options{
//	    Endpoints: search.EndpointsFor("acme", "prod"),
//	    Sink:      sink,
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = client.GetCounts(ctx, rules.Rule{Value: "weather"}, "30d", "", "day")
//
// Failure handling:
//
// Transport failures are retried once after a delay. A non-2xx status ends
// the rule's pagination and is logged rather than returned. An error field
// inside a 200 response is logged and the page's results are still written.
//
// Sinks:
//
// StdoutSink writes one record per line, FileSink writes one file per page
// named after the span it covers, and DatabaseSink inserts one row per
// record.
package search
