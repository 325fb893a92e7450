// Package credentials manages the model-to-session-credential mapping file.
//
// The mapping lives in a YAML file on disk so operators can edit it without
// restarting the service. The package loads the file into the broker's
// credential pool, watches it for changes with debounced hot reload, and
// implements the two-step capture flow (arm, then capture) used to harvest
// fresh session credentials from a live browser session.
//
// # File Format
//
//	models:
//	  model-a:
//	    - session_id: "7b6b..."
//	      message_id: "0c1d..."
//	      mode: "direct_chat"
//	  model-b:
//	    - session_id: "91fe..."
//	      message_id: "44aa..."
//	      mode: "battle"
//	      battle_target: "A"
//	fallback:
//	  session_id: "a0a0..."
//	  message_id: "b1b1..."
//	  mode: "direct_chat"
//
// A failed reload keeps the previous mapping; the pool is never left empty
// because of a bad edit.
package credentials
