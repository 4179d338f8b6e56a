package searchindex

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestSearchIndex(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SearchIndex Suite")
}
