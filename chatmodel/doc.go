// Package chatmodel carries the chat identity through context.Context.
package chatmodel
