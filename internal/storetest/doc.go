// Package storetest provides fixtures and a contract suite shared by the storage engine tests.
package storetest
