package lexicon

// Built-in vocabulary, biased toward radiology dictation where
// misrecognitions of clinical terms are most frequent. Correction keys
// are matched case-insensitively on word boundaries.
var defaultCorrections = map[string]string{
	"new monia":          "pneumonia",
	"ammonia":            "pneumonia",
	"new mothorax":       "pneumothorax",
	"noomothorax":        "pneumothorax",
	"atelectesis":        "atelectasis",
	"a telectasis":       "atelectasis",
	"effusion s":         "effusions",
	"plural effusion":    "pleural effusion",
	"cardio megaly":      "cardiomegaly",
	"hepato megaly":      "hepatomegaly",
	"spleno megaly":      "splenomegaly",
	"lymph adenopathy":   "lymphadenopathy",
	"osteo phytes":       "osteophytes",
	"spondy losis":       "spondylosis",
	"spondylo listhesis": "spondylolisthesis",
	"hemo thorax":        "hemothorax",
	"ground glass":       "ground-glass",
	"meta static":        "metastatic",
	"hemorrage":          "hemorrhage",
	"hemmorhage":         "hemorrhage",
	"anuerysm":           "aneurysm",
	"an eurysm":          "aneurysm",
	"divertic ulitis":    "diverticulitis",
	"colon oscopy":       "colonoscopy",
	"contra st":          "contrast",
	"hypo dense":         "hypodense",
	"hyper dense":        "hyperdense",
	"peri hilar":         "perihilar",
	"sub dural":          "subdural",
	"epi dural":          "epidural",
}

var defaultTerms = []string{
	"pneumonia",
	"pneumothorax",
	"atelectasis",
	"pleural effusion",
	"cardiomegaly",
	"hepatomegaly",
	"splenomegaly",
	"lymphadenopathy",
	"osteophytes",
	"spondylosis",
	"spondylolisthesis",
	"hemothorax",
	"hemorrhage",
	"aneurysm",
	"diverticulitis",
	"metastatic",
	"ground-glass",
	"consolidation",
	"opacity",
	"nodule",
	"lesion",
	"fracture",
	"stenosis",
	"edema",
	"infarct",
	"embolism",
	"thrombosis",
	"subdural",
	"epidural",
	"hypodense",
	"hyperdense",
	"perihilar",
	"contrast",
	"unremarkable",
}
