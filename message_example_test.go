package cometd

import (
	"encoding/json"
	"fmt"
)

func ExampleSubscribeRequestBuilder() {
	b := NewSubscribeRequestBuilder()
	for _, ch := range []Channel{"/stock/*", "/stock/*", "/news/tech"} {
		if err := b.AddSubscription(ch); err != nil {
			return
		}
	}
	b.AddClientID("client-1")
	m, err := b.Build()
	if err != nil {
		return
	}
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return
	}
	fmt.Println(string(jsonBytes))
	// Output:
	// [{"channel":"/meta/subscribe","clientId":"client-1","subscription":"/stock/*"},{"channel":"/meta/subscribe","clientId":"client-1","subscription":"/news/tech"}]
}

func ExamplePublishRequestBuilder() {
	b := NewPublishRequestBuilder()
	if err := b.AddChannel("/chat/room"); err != nil {
		return
	}
	if err := b.AddData(map[string]string{"text": "hello"}); err != nil {
		return
	}
	b.AddClientID("client-1")
	m, err := b.Build()
	if err != nil {
		return
	}
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return
	}
	fmt.Println(string(jsonBytes))
	// Output:
	// [{"channel":"/chat/room","clientId":"client-1","data":{"text":"hello"}}]
}

func ExampleChannel_Match() {
	pattern := Channel("/chat/*")
	fmt.Println(pattern.Match("/chat/room"))
	fmt.Println(pattern.Match("/chat/room/1"))
	fmt.Println(Channel("/chat/**").Match("/chat/room/1"))
	// Output:
	// true
	// false
	// true
}
