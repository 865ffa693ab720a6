// Package sopqa provides a Go client for the sopqa question answering
// service HTTP API.
//
//	client := sopqa.New("http://localhost:8080",
//	    sopqa.WithAPIKey(os.Getenv("SOPQA_API_KEY")),
//	)
//
//	count, _ := client.IngestText(ctx, "Reboot the router before escalating.", "runbook.md")
//	res, _ := client.Ask(ctx, "What should I do before escalating?")
//	if res.Found {
//	    fmt.Println(res.Answer, res.Sources)
//	}
package sopqa
